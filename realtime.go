package chatsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Wire Format
// ============================================================================

// Envelope is the wire format of every channel frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound event names.
const (
	OutAnnouncePresence = "handleUserConnection"
	OutTypingStart      = "typing_start"
	OutTypingStop       = "typing_stop"
	OutSendMessage      = "handleSendMessage"
	OutEditMessage      = "handleEditMessage"
	OutDeleteMessage    = "handleDeleteMessage"
)

// Inbound event names. Group chats also receive the group-scoped variants
// built by GroupMessageEvent, GroupEditedEvent and GroupDeletedEvent.
const (
	InPresenceRoster = "online_users"
	InPeerTyping     = "user_typing"
	InSendAck        = "message_sent"
	InNewMessage     = "new_message"
	InMessageEdited  = "message_edited"
	InMessageDeleted = "message_deleted"
	InSendError      = "message_error"
)

func GroupMessageEvent(groupID string) string { return "group_message_" + groupID }
func GroupEditedEvent(groupID string) string  { return "group_message_edited_" + groupID }
func GroupDeletedEvent(groupID string) string { return "group_message_deleted_" + groupID }

// eventFamily strips the group id from group-scoped event names.
func eventFamily(event string) string {
	for _, prefix := range []string{"group_message_edited_", "group_message_deleted_", "group_message_"} {
		if strings.HasPrefix(event, prefix) {
			return strings.TrimSuffix(prefix, "_")
		}
	}
	return event
}

// ============================================================================
// Configuration
// ============================================================================

// ChannelConfig configures a realtime channel.
type ChannelConfig struct {
	// URL of the websocket endpoint; http(s) schemes are mapped to ws(s).
	URL                  string
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HeartbeatInterval    time.Duration
	// ReadLimit bounds one inbound frame; file messages carry base64 payloads.
	ReadLimit  int64
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *Metrics
}

const (
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectDelay       = time.Second
	DefaultHeartbeatInterval    = 25 * time.Second
	DefaultReadLimit            = 96 << 20
)

func (c *ChannelConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

// ChannelHandler receives the payload of one inbound event.
type ChannelHandler func(data json.RawMessage)

// eventDispatcher runs handlers synchronously on the read loop so events are
// handled in delivery order.
type eventDispatcher struct {
	mu             sync.RWMutex
	handlers       map[string][]ChannelHandler
	onConnected    []func()
	onDisconnected []func(error)
	onReconnecting []func(int, time.Duration)
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{
		handlers: make(map[string][]ChannelHandler),
	}
}

func (d *eventDispatcher) dispatch(env Envelope) bool {
	d.mu.RLock()
	handlers := d.handlers[env.Event]
	d.mu.RUnlock()
	for _, h := range handlers {
		h(env.Data)
	}
	return len(handlers) > 0
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *eventDispatcher) emitDisconnected(err error) {
	d.mu.RLock()
	handlers := append([]func(error){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(attempt, delay)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

// reconnector hands out a fixed delay for a bounded number of attempts.
type reconnector struct {
	mu          sync.Mutex
	delay       time.Duration
	maxAttempts int
	attempt     int
}

func newReconnector(config *ChannelConfig) *reconnector {
	return &reconnector{
		delay:       config.ReconnectDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) next() (int, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxAttempts > 0 && r.attempt >= r.maxAttempts {
		return r.attempt, 0, false
	}
	r.attempt++
	return r.attempt, r.delay, true
}

func (r *reconnector) reset() {
	r.mu.Lock()
	r.attempt = 0
	r.mu.Unlock()
}

// ============================================================================
// Channel
// ============================================================================

// Channel is a websocket connection to the realtime server with automatic
// reconnection and heartbeat. A Channel is owned by one conversation and is
// not reused after Close.
type Channel struct {
	config     *ChannelConfig
	logger     zerolog.Logger
	dispatcher *eventDispatcher
	recon      *reconnector

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu           sync.Mutex
	conn         *websocket.Conn
	state        RealtimeState
	closed       bool
	reconnecting bool
	connCancel   context.CancelFunc
}

// NewChannel creates a channel. Call Start or Connect to open it.
func NewChannel(config ChannelConfig) *Channel {
	cfg := config
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		config:     &cfg,
		logger:     cfg.Logger.With().Str("component", "channel").Logger(),
		dispatcher: newEventDispatcher(),
		recon:      newReconnector(&cfg),
		lifeCtx:    ctx,
		lifeCancel: cancel,
		state:      StateDisconnected,
	}
}

// On registers a handler for an inbound event.
func (ch *Channel) On(event string, h ChannelHandler) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.handlers[event] = append(ch.dispatcher.handlers[event], h)
	ch.dispatcher.mu.Unlock()
}

// OnConnected registers a handler run after every successful connect.
func (ch *Channel) OnConnected(h func()) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.onConnected = append(ch.dispatcher.onConnected, h)
	ch.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler run when the connection drops or a
// connect attempt fails.
func (ch *Channel) OnDisconnected(h func(err error)) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.onDisconnected = append(ch.dispatcher.onDisconnected, h)
	ch.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler run before each reconnection attempt.
func (ch *Channel) OnReconnecting(h func(attempt int, delay time.Duration)) {
	ch.dispatcher.mu.Lock()
	ch.dispatcher.onReconnecting = append(ch.dispatcher.onReconnecting, h)
	ch.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (ch *Channel) State() RealtimeState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Start connects in the background, retrying per the reconnect policy when
// AutoReconnect is set.
func (ch *Channel) Start() {
	go func() {
		if err := ch.Connect(ch.lifeCtx); err != nil && ch.config.AutoReconnect {
			ch.reconnectLoop()
		}
	}()
}

// Connect makes one connection attempt.
func (ch *Channel) Connect(ctx context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ErrClosed
	}
	if ch.state == StateConnected || (ch.state == StateConnecting && ch.conn != nil) {
		ch.mu.Unlock()
		return nil
	}
	ch.state = StateConnecting
	ch.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, ch.dialURL(), &websocket.DialOptions{
		HTTPClient: ch.config.HTTPClient,
		HTTPHeader: ch.authHeader(),
	})
	if err != nil {
		ch.setState(StateDisconnected)
		ch.logger.Warn().Err(err).Msg("connect failed")
		ch.dispatcher.emitDisconnected(err)
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(ch.config.ReadLimit)

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client closed")
		return ErrClosed
	}
	connCtx, cancel := context.WithCancel(ch.lifeCtx)
	ch.conn = conn
	ch.connCancel = cancel
	ch.state = StateConnected
	ch.mu.Unlock()
	ch.recon.reset()

	ch.logger.Info().Msg("connected")
	ch.dispatcher.emitConnected()

	go ch.readLoop(connCtx, conn)
	go ch.heartbeatLoop(connCtx, conn)
	return nil
}

// Close tears the connection down and stops reconnection.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	conn := ch.conn
	ch.conn = nil
	ch.state = StateDisconnected
	if ch.connCancel != nil {
		ch.connCancel()
		ch.connCancel = nil
	}
	ch.mu.Unlock()
	ch.lifeCancel()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Emit sends one event with data marshaled as JSON.
func (ch *Channel) Emit(ctx context.Context, event string, data any) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (ch *Channel) setState(s RealtimeState) {
	ch.mu.Lock()
	ch.state = s
	ch.mu.Unlock()
}

func (ch *Channel) dialURL() string {
	u := strings.Replace(ch.config.URL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	if ch.config.Token == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "token=" + url.QueryEscape(ch.config.Token)
}

func (ch *Channel) authHeader() http.Header {
	h := http.Header{}
	if ch.config.Token != "" {
		h.Set("Authorization", "Bearer "+ch.config.Token)
	}
	return h
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			ch.mu.Lock()
			closed := ch.closed
			current := ch.conn == conn
			if current {
				ch.conn = nil
				ch.state = StateDisconnected
				if ch.connCancel != nil {
					ch.connCancel()
					ch.connCancel = nil
				}
			}
			ch.mu.Unlock()
			if closed || !current {
				return
			}

			ch.logger.Warn().Err(err).Msg("connection lost")
			ch.dispatcher.emitDisconnected(err)
			if ch.config.AutoReconnect {
				ch.reconnectLoop()
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			ch.logger.Debug().Int("bytes", len(data)).Msg("unparseable frame")
			continue
		}
		if !ch.dispatcher.dispatch(env) {
			ch.logger.Debug().Str("event", env.Event).Msg("no handler for event")
		}
	}
}

func (ch *Channel) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(ch.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				ch.logger.Warn().Err(err).Msg("heartbeat failed")
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (ch *Channel) reconnectLoop() {
	ch.mu.Lock()
	if ch.reconnecting || ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.reconnecting = true
	ch.mu.Unlock()
	defer func() {
		ch.mu.Lock()
		ch.reconnecting = false
		ch.mu.Unlock()
	}()

	for {
		attempt, delay, ok := ch.recon.next()
		if !ok {
			ch.logger.Error().Int("attempts", attempt).Msg("giving up reconnecting")
			ch.setState(StateDisconnected)
			return
		}
		ch.setState(StateConnecting)
		ch.config.Metrics.reconnect()
		ch.dispatcher.emitReconnecting(attempt, delay)

		select {
		case <-ch.lifeCtx.Done():
			return
		case <-time.After(delay):
		}

		err := ch.Connect(ch.lifeCtx)
		if err == nil || err == ErrClosed {
			return
		}
	}
}
