package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// errForeign marks an inbound event that does not concern this conversation.
var errForeign = errors.New("event for another chat")

// Conversation is the open chat window: its message history, draft, pending
// sends and realtime channel. Conversations are created by Session.Open and
// stop reacting to anything once another chat is opened or Close is called.
type Conversation struct {
	emitter

	session     *Session
	ref         ChatRef
	token       uint64
	self        Identity
	logger      zerolog.Logger
	metrics     *Metrics
	cache       Cache
	channel     *Channel
	composer    *Composer
	typing      *typingIndicator
	sendTimeout time.Duration
	ready       chan struct{}
	closed      atomic.Bool

	// mu guards store, pending and uploading, and is the feed's lock.
	mu        sync.Mutex
	store     *MessageStore
	feed      *Feed[Message]
	pending   map[string]*PendingSend
	uploading bool
}

func newConversation(s *Session, ref ChatRef, token uint64) *Conversation {
	c := &Conversation{
		session:     s,
		ref:         ref,
		token:       token,
		self:        s.self,
		logger:      s.logger.With().Str("chat", ref.String()).Logger(),
		metrics:     s.metrics,
		cache:       s.cache,
		composer:    NewComposer(s.limits),
		sendTimeout: s.sendTimeout,
		ready:       make(chan struct{}),
		store:       NewMessageStore(),
		pending:     make(map[string]*PendingSend),
	}
	c.typing = newTypingIndicator(s.typingTimeout, func(typing bool) {
		c.emit(EventTypingChanged, typing)
	})
	c.feed = NewFeed(c.store.Store, c.fetchMessages, FeedOptions{
		Name:           "messages",
		PageSize:       s.pageSize,
		NewestFirst:    true,
		Timeout:        s.fetchTimeout,
		SearchDebounce: s.searchDebounce,
		Locker:         &c.mu,
		Logger:         c.logger,
		Metrics:        s.metrics,
		OnChange:       func() { c.emit(EventMessagesChanged, nil) },
		OnError:        func(err error) { c.emit(EventFetchFailed, err) },
	})

	cfg := s.channelConfig
	cfg.Logger = c.logger
	cfg.Metrics = s.metrics
	c.channel = NewChannel(cfg)
	c.bind()
	return c
}

func (c *Conversation) fetchMessages(ctx context.Context, req PageRequest) (*Page[Message], error) {
	q := MessageQuery{Page: req.Page, Limit: req.PageSize, Search: req.Search}
	if c.ref.Type == ChatGroup {
		q.GroupID = c.ref.ID
	} else {
		q.FromUserID = c.self.UserID
		q.ToUserID = c.ref.ID
	}
	return c.session.backend.GetMessages(ctx, q)
}

// start connects the channel and loads the first page in the background.
func (c *Conversation) start() {
	c.channel.Start()
	go func() {
		defer close(c.ready)
		err := c.Reload(context.Background())
		if err != nil && !errors.Is(err, ErrStale) && !errors.Is(err, ErrClosed) {
			c.logger.Warn().Err(err).Msg("initial load failed")
		}
	}()
}

// active reports whether events and results may still be applied.
func (c *Conversation) active() bool {
	return !c.closed.Load() && c.session.activeToken.Load() == c.token
}

// ============================================================================
// Accessors
// ============================================================================

func (c *Conversation) Ref() ChatRef { return c.ref }

// Ready is closed once the first page load has settled.
func (c *Conversation) Ready() <-chan struct{} { return c.ready }

// Compose returns the conversation's draft.
func (c *Conversation) Compose() *Composer { return c.composer }

// Messages returns the history, oldest first.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Items()
}

// Message returns one message by id.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(id)
}

// Groups returns the history bucketed by calendar day in loc.
func (c *Conversation) Groups(loc *time.Location) []DateGroup {
	return GroupByDate(c.Messages(), loc)
}

// View returns the history filtered by the current search term and bucketed
// by day.
func (c *Conversation) View(loc *time.Location) []DateGroup {
	return GroupByDate(FilterMessages(c.Messages(), c.feed.SearchTerm()), loc)
}

func (c *Conversation) PageState() PageState { return c.feed.State() }

func (c *Conversation) Loading() (loading, loadingMore bool) { return c.feed.Loading() }

func (c *Conversation) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

// PeerTyping reports whether the peer of a direct chat is typing.
func (c *Conversation) PeerTyping() bool { return c.typing.Typing() }

// PeerPresence returns the presence of the peer of a direct chat.
func (c *Conversation) PeerPresence() (PresenceEntry, bool) {
	if c.ref.Type != ChatDirect {
		return PresenceEntry{}, false
	}
	return c.session.presence.Get(c.ref.ID)
}

func (c *Conversation) ConnectionState() RealtimeState { return c.channel.State() }

// ============================================================================
// History
// ============================================================================

// Reload discards the history and loads the newest page. When it fails and a
// cache is configured, cached messages are shown instead.
func (c *Conversation) Reload(ctx context.Context) error {
	return c.fetch(ctx, FetchReset)
}

// LoadOlder loads the next page of older messages.
func (c *Conversation) LoadOlder(ctx context.Context) error {
	return c.fetch(ctx, FetchForward)
}

// LoadNewer loads the previous page of newer messages, if not loaded yet.
func (c *Conversation) LoadNewer(ctx context.Context) error {
	return c.fetch(ctx, FetchBackward)
}

// Search sets the history search term; the reload is debounced.
func (c *Conversation) Search(term string) {
	if !c.active() {
		return
	}
	c.feed.Search(term)
}

// SearchNow sets the history search term and reloads without debouncing.
func (c *Conversation) SearchNow(ctx context.Context, term string) error {
	c.feed.SetSearch(term)
	return c.fetch(ctx, FetchReset)
}

func (c *Conversation) fetch(ctx context.Context, mode FetchMode) error {
	if !c.active() {
		return ErrClosed
	}
	err := c.feed.FetchPage(ctx, mode)
	switch {
	case err == nil:
		if c.feed.SearchTerm() == "" {
			c.persist(c.feed.Items())
		}
	case mode == FetchReset && !errors.Is(err, ErrStale) && !errors.Is(err, ErrClosed):
		c.restore()
	}
	return err
}

func (c *Conversation) persist(msgs []Message) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Save(c.ref, msgs); err != nil {
		c.logger.Warn().Err(err).Msg("failed to cache messages")
	}
}

func (c *Conversation) restore() {
	if c.cache == nil || !c.active() {
		return
	}
	msgs, err := c.cache.Load(c.ref)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read cached messages")
		return
	}
	if len(msgs) > 0 && c.feed.seed(msgs) {
		c.logger.Info().Int("messages", len(msgs)).Msg("showing cached messages")
		c.emit(EventMessagesChanged, nil)
	}
}

// ============================================================================
// Realtime Events
// ============================================================================

func (c *Conversation) bind() {
	ch := c.channel
	ch.OnConnected(func() {
		c.announce()
		c.emit(EventConnectionChanged, StateConnected)
	})
	ch.OnDisconnected(func(error) {
		c.emit(EventConnectionChanged, StateDisconnected)
	})
	ch.OnReconnecting(func(int, time.Duration) {
		c.emit(EventConnectionChanged, StateConnecting)
	})

	c.handle(InPresenceRoster, c.onRoster)
	c.handle(InPeerTyping, c.onTyping)
	c.handle(InSendAck, c.onAck)
	c.handle(InNewMessage, c.onNew)
	c.handle(InMessageEdited, c.onEdited)
	c.handle(InMessageDeleted, c.onDeleted)
	c.handle(InSendError, c.onSendError)
	if c.ref.Type == ChatGroup {
		c.handle(GroupMessageEvent(c.ref.ID), c.onGroupMessage)
		c.handle(GroupEditedEvent(c.ref.ID), c.onGroupEdited)
		c.handle(GroupDeletedEvent(c.ref.ID), c.onDeleted)
	}
}

func (c *Conversation) handle(event string, fn func(gjson.Result) error) {
	c.channel.On(event, func(data json.RawMessage) {
		if !c.active() {
			c.metrics.event(event, "stale")
			c.logger.Debug().Str("event", event).Msg("ignoring event for inactive chat")
			return
		}
		err := fn(gjson.ParseBytes(data))
		switch {
		case errors.Is(err, errForeign):
			c.metrics.event(event, "ignored")
		case err != nil:
			c.metrics.event(event, "invalid")
			c.logger.Warn().Err(err).Str("event", event).Msg("malformed event")
		default:
			c.metrics.event(event, "applied")
		}
	})
}

func (c *Conversation) announce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.channel.Emit(ctx, OutAnnouncePresence, presencePayload{
		UserID:   c.self.UserID,
		UserInfo: c.self,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to announce presence")
	}
}

// messageBody returns the message object of a payload that may wrap it under
// "message".
func messageBody(r gjson.Result) gjson.Result {
	if m := r.Get("message"); m.IsObject() {
		return m
	}
	return r
}

func (c *Conversation) onRoster(r gjson.Result) error {
	if !r.IsArray() {
		r = r.Get("users")
	}
	if !r.IsArray() {
		return errors.New("online_users payload is not a list")
	}
	var ids []string
	r.ForEach(func(_, v gjson.Result) bool {
		if id := v.String(); id != "" {
			ids = append(ids, id)
		}
		return true
	})
	c.session.presence.Replace(ids, time.Now())
	c.emit(EventPresenceChanged, c.session.presence.Snapshot())
	return nil
}

func (c *Conversation) onTyping(r gjson.Result) error {
	if c.ref.Type != ChatDirect || r.Get("userId").String() != c.ref.ID {
		return errForeign
	}
	c.typing.Set(r.Get("isTyping").Bool())
	return nil
}

func (c *Conversation) onAck(r gjson.Result) error {
	tempID := r.Get("tempId").String()
	if tempID == "" {
		return errors.New("message_sent without tempId")
	}
	m, err := decodeMessage(messageBody(r))
	if err != nil {
		return err
	}

	c.mu.Lock()
	p := c.pending[tempID]
	delete(c.pending, tempID)
	found := c.store.Confirm(tempID, m)
	before := c.uploading
	c.uploading = c.uploadingLocked()
	after := c.uploading
	c.mu.Unlock()

	if p == nil && !found {
		return errForeign
	}
	m.IsSending, m.TempID = false, ""
	if p != nil {
		p.resolve(SendConfirmed, m, nil)
		c.metrics.send("confirmed")
	}
	if found {
		c.emit(EventMessagesChanged, nil)
	}
	if before != after {
		c.emit(EventUploadingChanged, after)
	}
	c.emit(EventSendConfirmed, m)
	return nil
}

func (c *Conversation) onNew(r gjson.Result) error {
	m, err := decodeMessage(messageBody(r))
	if err != nil {
		return err
	}
	return c.applyNew(m)
}

func (c *Conversation) onGroupMessage(r gjson.Result) error {
	m, err := decodeMessage(messageBody(r))
	if err != nil {
		return err
	}
	if m.GroupID == "" {
		m.GroupID = c.ref.ID
		m.ToUserID = ""
	}
	return c.applyNew(m)
}

func (c *Conversation) applyNew(m Message) error {
	if !m.BelongsTo(c.ref, c.self.UserID) {
		return errForeign
	}
	if err := m.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.store.ApplyNew(m)
	c.mu.Unlock()
	c.emit(EventMessagesChanged, nil)
	return nil
}

func (c *Conversation) onEdited(r gjson.Result) error {
	m, err := decodeMessage(messageBody(r))
	if err != nil {
		return err
	}
	return c.applyEdit(m)
}

func (c *Conversation) onGroupEdited(r gjson.Result) error {
	m, err := decodeMessage(messageBody(r))
	if err != nil {
		return err
	}
	if m.GroupID == "" {
		m.GroupID = c.ref.ID
		m.ToUserID = ""
	}
	return c.applyEdit(m)
}

func (c *Conversation) applyEdit(m Message) error {
	if !m.BelongsTo(c.ref, c.self.UserID) {
		return errForeign
	}
	if err := m.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	ok := c.store.ApplyEdit(m)
	c.mu.Unlock()
	if !ok {
		return errForeign
	}
	c.emit(EventMessagesChanged, nil)
	return nil
}

func (c *Conversation) onDeleted(r gjson.Result) error {
	id := r.Get("messageId").String()
	if id == "" {
		id = r.Get("id").String()
	}
	if id == "" {
		return errors.New("message_deleted without messageId")
	}
	c.mu.Lock()
	ok := c.store.ApplyDelete(id)
	c.mu.Unlock()
	if !ok {
		return errForeign
	}
	c.emit(EventMessagesChanged, nil)
	return nil
}

func (c *Conversation) onSendError(r gjson.Result) error {
	msg := r.Get("error").String()
	if msg == "" {
		msg = "failed to send message"
	}
	err := &APIError{Code: "SEND_FAILED", Message: msg}
	tempID := r.Get("tempId").String()
	if tempID == "" {
		c.logger.Warn().Str("error", msg).Msg("server rejected a message")
		c.emit(EventSendFailed, &SendError{Err: err})
		return nil
	}
	if !c.fail(tempID, err, "rejected") {
		return errForeign
	}
	return nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Close stops the conversation: in-flight fetches are discarded, pending
// sends fail with ErrClosed and the channel is torn down. Close is
// idempotent.
func (c *Conversation) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	search := c.feed.SearchTerm()
	c.feed.Close()
	c.typing.Stop()

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*PendingSend)
	c.uploading = false
	msgs := c.store.Items()
	c.mu.Unlock()

	for _, p := range pending {
		p.resolve(SendFailed, Message{}, ErrClosed)
	}
	if search == "" && len(msgs) > 0 {
		c.persist(msgs)
	}
	err := c.channel.Close()
	c.removeAll()
	c.logger.Debug().Msg("conversation closed")
	return err
}
