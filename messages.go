package chatsync

import (
	"sort"
	"strings"
	"time"
)

// MessageStore is the oldest-first message collection of one conversation.
type MessageStore struct {
	*Store[Message]
}

func NewMessageStore() *MessageStore {
	return &MessageStore{Store: NewStore[Message]()}
}

// Confirm replaces the optimistic entry for tempID with the server version.
// If the server id is already present the optimistic entry is dropped and
// the existing entry is refreshed. It reports whether an optimistic entry was
// found.
func (s *MessageStore) Confirm(tempID string, m Message) bool {
	m.IsSending = false
	m.TempID = ""
	return s.Replace(tempID, m)
}

// DropPending removes the optimistic entry for tempID, if still pending.
func (s *MessageStore) DropPending(tempID string) bool {
	m, ok := s.Get(tempID)
	if !ok || !m.IsSending {
		return false
	}
	return s.Remove(tempID)
}

// ApplyNew inserts m, or replaces the stored copy in place. It reports
// whether m was inserted.
func (s *MessageStore) ApplyNew(m Message) bool {
	m.IsSending = false
	return s.Upsert(m)
}

// ApplyEdit replaces the stored copy of m, marking it edited. Unknown ids are
// ignored.
func (s *MessageStore) ApplyEdit(m Message) bool {
	m.IsEdited = true
	m.IsSending = false
	return s.Replace(m.ID, m)
}

// ApplyDelete removes the message with id. Unknown ids are ignored.
func (s *MessageStore) ApplyDelete(id string) bool {
	return s.Remove(id)
}

// ============================================================================
// Display helpers
// ============================================================================

// DateGroup is the run of messages created on one local calendar day.
type DateGroup struct {
	Day      time.Time `json:"day"`
	Messages []Message `json:"messages"`
}

// Key returns the group's day as YYYY-MM-DD.
func (g DateGroup) Key() string { return g.Day.Format("2006-01-02") }

// GroupByDate groups msgs by the calendar date of CreatedAt in loc. Groups
// are chronological; messages keep their order within a group.
func GroupByDate(msgs []Message, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}
	byDay := make(map[time.Time]int)
	var groups []DateGroup
	for _, m := range msgs {
		t := m.CreatedAt.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		i, ok := byDay[day]
		if !ok {
			i = len(groups)
			byDay[day] = i
			groups = append(groups, DateGroup{Day: day})
		}
		groups[i].Messages = append(groups[i].Messages, m)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Day.Before(groups[j].Day) })
	return groups
}

// FilterMessages returns the messages whose text or any attachment name
// contains term, case-insensitively. An empty term returns msgs unchanged.
func FilterMessages(msgs []Message, term string) []Message {
	q := strings.ToLower(strings.TrimSpace(term))
	if q == "" {
		return msgs
	}
	var out []Message
	for _, m := range msgs {
		if matchesMessage(m, q) {
			out = append(out, m)
		}
	}
	return out
}

func matchesMessage(m Message, q string) bool {
	if strings.Contains(strings.ToLower(m.MessageText), q) {
		return true
	}
	for _, f := range m.Files {
		if strings.Contains(strings.ToLower(f.Name), q) {
			return true
		}
	}
	return false
}

// DateLabel renders a group header: "Today", "Yesterday", or the full date.
func DateLabel(day, now time.Time) string {
	d := day.In(now.Location())
	y1, m1, d1 := d.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return "Today"
	}
	yesterday := now.AddDate(0, 0, -1)
	y3, m3, d3 := yesterday.Date()
	if y1 == y3 && m1 == m3 && d1 == d3 {
		return "Yesterday"
	}
	return d.Format("Monday, January 2, 2006")
}
