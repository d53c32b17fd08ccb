package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSendTimeout is how long an optimistic message waits for its
// acknowledgment before it is rolled back.
const DefaultSendTimeout = 30 * time.Second

// ============================================================================
// Pending Sends
// ============================================================================

// SendState is the lifecycle state of an optimistic send.
type SendState string

const (
	SendPending   SendState = "pending"
	SendConfirmed SendState = "confirmed"
	SendFailed    SendState = "failed"
)

// SendError reports a send that did not reach the server or was rejected.
type SendError struct {
	TempID string
	Err    error
}

func (e *SendError) Error() string {
	if e.TempID == "" {
		return "send failed: " + e.Err.Error()
	}
	return fmt.Sprintf("send %s failed: %v", e.TempID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// PendingSend tracks one optimistic message until it is confirmed or fails.
type PendingSend struct {
	TempID string

	hasFiles bool
	done     chan struct{}

	mu    sync.Mutex
	state SendState
	msg   Message
	err   error
	timer *time.Timer
}

func newPendingSend(tempID string, hasFiles bool) *PendingSend {
	return &PendingSend{
		TempID:   tempID,
		hasFiles: hasFiles,
		done:     make(chan struct{}),
		state:    SendPending,
	}
}

// resolve settles the send once; later calls are ignored.
func (p *PendingSend) resolve(state SendState, m Message, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != SendPending {
		return false
	}
	p.state, p.msg, p.err = state, m, err
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	close(p.done)
	return true
}

func (p *PendingSend) State() SendState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once the send is confirmed or failed.
func (p *PendingSend) Done() <-chan struct{} { return p.done }

// Wait blocks until the send settles and returns the server's message.
func (p *PendingSend) Wait(ctx context.Context) (Message, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msg, p.err
}

// ============================================================================
// Outbound Payloads
// ============================================================================

type presencePayload struct {
	UserID   string   `json:"userId"`
	UserInfo Identity `json:"userInfo"`
}

type typingPayload struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

type outboundFile struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Type   string `json:"type"`
	Base64 string `json:"base64"`
}

type sendPayload struct {
	FromUserID  string         `json:"fromUserId"`
	ToUserID    string         `json:"toUserId,omitempty"`
	GroupID     string         `json:"groupId,omitempty"`
	MessageType MessageKind    `json:"messageType"`
	MessageText string         `json:"messageText,omitempty"`
	Files       []outboundFile `json:"files,omitempty"`
	TempID      string         `json:"tempId"`
}

type editPayload struct {
	MessageID   string `json:"messageId"`
	MessageText string `json:"messageText"`
	FromUserID  string `json:"fromUserId"`
	ToUserID    string `json:"toUserId,omitempty"`
	GroupID     string `json:"groupId,omitempty"`
}

type deletePayload struct {
	MessageID  string `json:"messageId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
}

func (c *Conversation) target() (to, group string) {
	if c.ref.Type == ChatGroup {
		return "", c.ref.ID
	}
	return c.ref.ID, ""
}

// ============================================================================
// Send Pipeline
// ============================================================================

// Send sends the composer's draft and clears it once the message is on the
// wire.
func (c *Conversation) Send(ctx context.Context) (*PendingSend, error) {
	p, err := c.SendDraft(ctx, c.composer.Draft())
	if err != nil {
		return nil, err
	}
	c.composer.Clear()
	return p, nil
}

// SendDraft sends d optimistically. The message is appended to the history
// with IsSending set before anything goes on the wire, and is replaced by
// the server's version on acknowledgment. It is removed again if encoding
// or transmission fails, the server rejects it, or no acknowledgment comes
// within the send timeout.
func (c *Conversation) SendDraft(ctx context.Context, d Draft) (*PendingSend, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := c.composer.limits.Check(d); err != nil {
		return nil, err
	}
	if !c.active() {
		return nil, ErrClosed
	}
	if c.channel.State() != StateConnected {
		return nil, ErrNotConnected
	}

	tempID := "temp-" + uuid.NewString()
	to, group := c.target()
	kind := d.Kind
	if len(d.Files) == 0 {
		kind = KindText
	} else if kind != KindImage {
		kind = KindDoc
	}

	optimistic := Message{
		ID:          tempID,
		TempID:      tempID,
		FromUserID:  c.self.UserID,
		ToUserID:    to,
		GroupID:     group,
		MessageType: kind,
		CreatedAt:   time.Now().UTC(),
		IsSending:   true,
		IsRead:      true,
		SenderName:  c.self.Name,
	}
	if len(d.Files) == 0 {
		optimistic.MessageText = d.Text
	}
	for _, f := range d.Files {
		optimistic.Files = append(optimistic.Files, FileAttachment{Name: f.Name, Size: f.Size, Type: f.Type})
	}

	p := newPendingSend(tempID, len(d.Files) > 0)
	c.mu.Lock()
	c.store.Append(optimistic)
	c.pending[tempID] = p
	before := c.uploading
	c.uploading = c.uploadingLocked()
	after := c.uploading
	c.mu.Unlock()
	c.emit(EventMessagesChanged, nil)
	if before != after {
		c.emit(EventUploadingChanged, after)
	}

	payload := sendPayload{
		FromUserID:  c.self.UserID,
		ToUserID:    to,
		GroupID:     group,
		MessageType: kind,
		MessageText: optimistic.MessageText,
		TempID:      tempID,
	}
	if len(d.Files) > 0 {
		encoded, err := encodeFiles(ctx, d.Files)
		if err != nil {
			err = fmt.Errorf("failed to process files: %w", err)
			c.fail(tempID, err, "encode_failed")
			return nil, err
		}
		c.mu.Lock()
		c.store.Update(tempID, func(m Message) Message {
			m.Files = encoded
			return m
		})
		c.mu.Unlock()
		for _, f := range encoded {
			payload.Files = append(payload.Files, outboundFile{Name: f.Name, Size: f.Size, Type: f.Type, Base64: f.Content})
		}
	}

	if err := c.channel.Emit(ctx, OutSendMessage, payload); err != nil {
		c.fail(tempID, err, "transmit_failed")
		return nil, err
	}

	p.mu.Lock()
	if p.state == SendPending {
		p.timer = time.AfterFunc(c.sendTimeout, func() {
			if c.fail(tempID, ErrSendTimeout, "timeout") {
				c.logger.Warn().Str("temp_id", tempID).Msg("no acknowledgment for message")
			}
		})
	}
	p.mu.Unlock()

	c.stopTyping(ctx)
	c.logger.Debug().Str("temp_id", tempID).Str("type", string(kind)).Int("files", len(d.Files)).Msg("message sent")
	return p, nil
}

// fail rolls back the optimistic entry for tempID. It reports whether there
// was anything to roll back.
func (c *Conversation) fail(tempID string, err error, result string) bool {
	c.mu.Lock()
	p := c.pending[tempID]
	delete(c.pending, tempID)
	dropped := c.store.DropPending(tempID)
	before := c.uploading
	c.uploading = c.uploadingLocked()
	after := c.uploading
	c.mu.Unlock()

	if p == nil && !dropped {
		return false
	}
	if p != nil {
		p.resolve(SendFailed, Message{}, err)
	}
	c.metrics.send(result)
	if dropped {
		c.emit(EventMessagesChanged, nil)
	}
	if before != after {
		c.emit(EventUploadingChanged, after)
	}
	c.emit(EventSendFailed, &SendError{TempID: tempID, Err: err})
	return true
}

func (c *Conversation) uploadingLocked() bool {
	for _, p := range c.pending {
		if p.hasFiles {
			return true
		}
	}
	return false
}

// Pending returns the sends still awaiting acknowledgment.
func (c *Conversation) Pending() []*PendingSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*PendingSend, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	return out
}

// ============================================================================
// Edit / Delete
// ============================================================================

// Edit asks the server to replace the text of message id. The history is
// updated when the server broadcasts the edit.
func (c *Conversation) Edit(ctx context.Context, id, text string) error {
	if !c.active() {
		return ErrClosed
	}
	m, ok := c.Message(id)
	if !ok {
		return ErrMessageNotFound
	}
	if m.MessageType != KindText || m.IsSending {
		return ErrNotEditable
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	to, group := c.target()
	return c.channel.Emit(ctx, OutEditMessage, editPayload{
		MessageID:   id,
		MessageText: text,
		FromUserID:  c.self.UserID,
		ToUserID:    to,
		GroupID:     group,
	})
}

// Delete asks the server to delete message id. The history is updated when
// the server broadcasts the deletion.
func (c *Conversation) Delete(ctx context.Context, id string) error {
	if !c.active() {
		return ErrClosed
	}
	m, ok := c.Message(id)
	if !ok || m.IsSending {
		return ErrMessageNotFound
	}
	to, group := c.target()
	return c.channel.Emit(ctx, OutDeleteMessage, deletePayload{
		MessageID:  id,
		FromUserID: c.self.UserID,
		ToUserID:   to,
		GroupID:    group,
	})
}

// ============================================================================
// Typing
// ============================================================================

// InputChanged updates the draft text and tells the peer of a direct chat
// whether the local user is typing.
func (c *Conversation) InputChanged(ctx context.Context, text string) error {
	if err := c.composer.SetText(text); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		c.stopTyping(ctx)
		return nil
	}
	c.emitTyping(ctx, OutTypingStart)
	return nil
}

func (c *Conversation) stopTyping(ctx context.Context) {
	c.emitTyping(ctx, OutTypingStop)
}

func (c *Conversation) emitTyping(ctx context.Context, event string) {
	if c.ref.Type != ChatDirect || !c.active() {
		return
	}
	err := c.channel.Emit(ctx, event, typingPayload{FromUserID: c.self.UserID, ToUserID: c.ref.ID})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.Debug().Err(err).Str("event", event).Msg("failed to send typing signal")
	}
}
