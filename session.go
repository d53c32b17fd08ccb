package chatsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Session is the widget's process-wide state: the local identity, the
// presence roster, and the currently open conversation. At most one
// conversation is active; opening another invalidates the previous one.
type Session struct {
	backend  Backend
	self     Identity
	presence *Presence

	logger         zerolog.Logger
	metrics        *Metrics
	cache          Cache
	channelConfig  ChannelConfig
	limits         Limits
	pageSize       int
	fetchTimeout   time.Duration
	searchDebounce time.Duration
	sendTimeout    time.Duration
	typingTimeout  time.Duration

	activeToken atomic.Uint64

	mu     sync.Mutex
	active *Conversation
	closed bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSocketURL sets the realtime endpoint.
func WithSocketURL(url string) SessionOption {
	return func(s *Session) { s.channelConfig.URL = url }
}

// WithSocketToken authenticates the realtime channel.
func WithSocketToken(token string) SessionOption {
	return func(s *Session) { s.channelConfig.Token = token }
}

// WithReconnect sets the reconnection policy. attempts < 0 disables
// reconnection.
func WithReconnect(attempts int, delay time.Duration) SessionOption {
	return func(s *Session) {
		if attempts < 0 {
			s.channelConfig.AutoReconnect = false
			return
		}
		s.channelConfig.AutoReconnect = true
		s.channelConfig.MaxReconnectAttempts = attempts
		s.channelConfig.ReconnectDelay = delay
	}
}

// WithHeartbeat sets the websocket ping interval.
func WithHeartbeat(interval time.Duration) SessionOption {
	return func(s *Session) { s.channelConfig.HeartbeatInterval = interval }
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithCache keeps conversation histories in c, shown when a reload fails.
func WithCache(c Cache) SessionOption {
	return func(s *Session) { s.cache = c }
}

func WithLimits(l Limits) SessionOption {
	return func(s *Session) { s.limits = l }
}

func WithPageSize(n int) SessionOption {
	return func(s *Session) { s.pageSize = n }
}

func WithFetchTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.fetchTimeout = d }
}

func WithSearchDebounce(d time.Duration) SessionOption {
	return func(s *Session) { s.searchDebounce = d }
}

func WithSendTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.sendTimeout = d }
}

func WithTypingTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.typingTimeout = d }
}

// NewSession creates a session for the local user self.
func NewSession(backend Backend, self Identity, opts ...SessionOption) *Session {
	s := &Session{
		backend:  backend,
		self:     self,
		presence: NewPresence(),
		logger:   zerolog.Nop(),
		channelConfig: ChannelConfig{
			AutoReconnect:        true,
			MaxReconnectAttempts: DefaultMaxReconnectAttempts,
			ReconnectDelay:       DefaultReconnectDelay,
		},
		limits:         DefaultLimits(),
		pageSize:       DefaultPageSize,
		fetchTimeout:   DefaultFetchTimeout,
		searchDebounce: DefaultSearchDebounce,
		sendTimeout:    DefaultSendTimeout,
		typingTimeout:  DefaultTypingTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Self() Identity { return s.self }

// Presence returns the shared presence roster.
func (s *Session) Presence() *Presence { return s.presence }

// Open makes ref the active chat. The previous conversation is closed; its
// in-flight fetches and any events still addressed to it are discarded. The
// returned conversation connects and loads its first page in the background.
func (s *Session) Open(ctx context.Context, ref ChatRef) (*Conversation, error) {
	if !ref.Valid() {
		return nil, ErrNoChat
	}
	if s.self.UserID == "" {
		return nil, errors.New("session has no local user id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	prev := s.active
	token := s.activeToken.Add(1)
	conv := newConversation(s, ref, token)
	s.active = conv
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	s.logger.Info().Str("chat", ref.String()).Msg("chat opened")
	conv.start()
	return conv, nil
}

// Active returns the open conversation, or nil.
func (s *Session) Active() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close closes the active conversation and the cache.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conv := s.active
	s.active = nil
	s.activeToken.Add(1)
	s.mu.Unlock()

	var errs []error
	if conv != nil {
		errs = append(errs, conv.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	return errors.Join(errs...)
}
