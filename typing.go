package chatsync

import (
	"sync"
	"time"
)

// DefaultTypingTimeout clears a peer typing flag that was not refreshed.
const DefaultTypingTimeout = 3 * time.Second

// typingIndicator tracks whether the peer is typing. A true flag clears
// itself after timeout unless refreshed. onChange runs with the new value on
// every transition, outside the indicator's lock.
type typingIndicator struct {
	mu       sync.Mutex
	timeout  time.Duration
	typing   bool
	timer    *time.Timer
	seq      uint64
	onChange func(bool)
}

func newTypingIndicator(timeout time.Duration, onChange func(bool)) *typingIndicator {
	if timeout == 0 {
		timeout = DefaultTypingTimeout
	}
	return &typingIndicator{timeout: timeout, onChange: onChange}
}

func (t *typingIndicator) Set(typing bool) {
	t.mu.Lock()
	changed := t.typing != typing
	t.typing = typing
	t.seq++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if typing {
		seq := t.seq
		t.timer = time.AfterFunc(t.timeout, func() { t.expire(seq) })
	}
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(typing)
	}
}

func (t *typingIndicator) expire(seq uint64) {
	t.mu.Lock()
	if seq != t.seq || !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.timer = nil
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(false)
	}
}

func (t *typingIndicator) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// Stop cancels the timer without notifying.
func (t *typingIndicator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.typing = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
