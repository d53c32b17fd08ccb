package chatsync

import (
	"sort"
	"sync"
	"time"
)

// Presence is the process-wide view of which users are online. It is shared
// by every conversation of a Session.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]PresenceEntry)}
}

// Replace applies a full roster: listed users become online, everybody else
// known becomes offline with LastSeen set to now.
func (p *Presence) Replace(online []string, now time.Time) {
	set := make(map[string]struct{}, len(online))
	for _, id := range online {
		set[id] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.entries {
		if _, ok := set[id]; ok {
			continue
		}
		if e.Status == StatusOnline {
			e.Status = StatusOffline
			e.LastSeen = now
			p.entries[id] = e
		}
	}
	for id := range set {
		p.entries[id] = PresenceEntry{UserID: id, Status: StatusOnline, LastSeen: now}
	}
}

// Merge applies individual updates; the last write for a user wins.
func (p *Presence) Merge(entries ...PresenceEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		p.entries[e.UserID] = e
	}
}

func (p *Presence) Get(userID string) (PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[userID]
	return e, ok
}

func (p *Presence) IsOnline(userID string) bool {
	e, ok := p.Get(userID)
	return ok && e.Status == StatusOnline
}

// Online returns the ids of online users, sorted.
func (p *Presence) Online() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ids []string
	for id, e := range p.entries {
		if e.Status == StatusOnline {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns every known entry, sorted by user id.
func (p *Presence) Snapshot() []PresenceEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PresenceEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
