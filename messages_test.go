package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

type item struct {
	ID   string
	Name string
}

func (i item) Key() string { return i.ID }

func keys[T Keyed](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key()
	}
	return out
}

func textMessage(id, from, to, text string, at time.Time) Message {
	return Message{ID: id, FromUserID: from, ToUserID: to, MessageType: KindText, MessageText: text, CreatedAt: at}
}

// ============================================================================
// Store
// ============================================================================

func TestStore(t *testing.T) {
	t.Run("append skips duplicates", func(t *testing.T) {
		s := NewStore[item]()
		assert.Equal(t, 2, s.Append(item{ID: "1"}, item{ID: "2"}))
		assert.Equal(t, 1, s.Append(item{ID: "2"}, item{ID: "3"}, item{ID: "3"}))
		assert.Equal(t, []string{"1", "2", "3"}, keys(s.Items()))
	})

	t.Run("prepend keeps order", func(t *testing.T) {
		s := NewStore[item]()
		s.Append(item{ID: "3"}, item{ID: "4"})
		assert.Equal(t, 2, s.Prepend(item{ID: "1"}, item{ID: "2"}, item{ID: "3"}, item{ID: "1"}))
		assert.Equal(t, []string{"1", "2", "3", "4"}, keys(s.Items()))

		got, ok := s.Get("4")
		require.True(t, ok)
		assert.Equal(t, "4", got.ID)
	})

	t.Run("reset drops duplicates", func(t *testing.T) {
		s := NewStore[item]()
		s.Append(item{ID: "old"})
		s.Reset([]item{{ID: "a"}, {ID: "b"}, {ID: "a"}})
		assert.Equal(t, []string{"a", "b"}, keys(s.Items()))
		assert.False(t, s.Has("old"))
	})

	t.Run("items is a copy", func(t *testing.T) {
		s := NewStore[item]()
		s.Append(item{ID: "1", Name: "a"})
		items := s.Items()
		items[0].Name = "changed"
		got, _ := s.Get("1")
		assert.Equal(t, "a", got.Name)
	})

	t.Run("upsert", func(t *testing.T) {
		s := NewStore[item]()
		assert.True(t, s.Upsert(item{ID: "1", Name: "a"}))
		assert.False(t, s.Upsert(item{ID: "1", Name: "b"}))
		assert.Equal(t, 1, s.Len())
		got, _ := s.Get("1")
		assert.Equal(t, "b", got.Name)
	})

	t.Run("replace rekeys in place", func(t *testing.T) {
		s := NewStore[item]()
		s.Append(item{ID: "1"}, item{ID: "tmp"}, item{ID: "3"})
		assert.True(t, s.Replace("tmp", item{ID: "2"}))
		assert.Equal(t, []string{"1", "2", "3"}, keys(s.Items()))
		assert.False(t, s.Has("tmp"))
	})

	t.Run("replace onto existing key", func(t *testing.T) {
		s := NewStore[item]()
		s.Append(item{ID: "2", Name: "old"}, item{ID: "tmp"})
		assert.True(t, s.Replace("tmp", item{ID: "2", Name: "new"}))
		assert.Equal(t, []string{"2"}, keys(s.Items()))
		got, _ := s.Get("2")
		assert.Equal(t, "new", got.Name)
	})

	t.Run("replace unknown key", func(t *testing.T) {
		s := NewStore[item]()
		assert.False(t, s.Replace("nope", item{ID: "nope"}))
		assert.Equal(t, 0, s.Len())
	})

	t.Run("remove reindexes", func(t *testing.T) {
		s := NewStore[item]()
		s.Append(item{ID: "1"}, item{ID: "2"}, item{ID: "3"})
		assert.True(t, s.Remove("2"))
		assert.False(t, s.Remove("2"))
		got, ok := s.Get("3")
		require.True(t, ok)
		assert.Equal(t, "3", got.ID)
		assert.Equal(t, []string{"1", "3"}, keys(s.Items()))
	})
}

// ============================================================================
// MessageStore
// ============================================================================

func TestMessageStore(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("replaying a new message keeps one copy", func(t *testing.T) {
		s := NewMessageStore()
		m := textMessage("5", "42", "7", "hello", now)
		assert.True(t, s.ApplyNew(m))
		assert.False(t, s.ApplyNew(m))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("confirm replaces optimistic entry", func(t *testing.T) {
		s := NewMessageStore()
		s.Append(textMessage("1", "7", "42", "before", now))
		pending := textMessage("temp-a", "7", "42", "hi", now)
		pending.TempID, pending.IsSending = "temp-a", true
		s.Append(pending)
		s.Append(textMessage("3", "42", "7", "after", now))

		assert.True(t, s.Confirm("temp-a", textMessage("101", "7", "42", "hi", now)))
		assert.Equal(t, []string{"1", "101", "3"}, keys(s.Items()))
		got, _ := s.Get("101")
		assert.False(t, got.IsSending)
		assert.Empty(t, got.TempID)
	})

	t.Run("confirm after the broadcast already arrived", func(t *testing.T) {
		s := NewMessageStore()
		pending := textMessage("temp-a", "7", "42", "hi", now)
		pending.IsSending = true
		s.Append(pending)
		s.ApplyNew(textMessage("101", "7", "42", "hi", now))

		assert.True(t, s.Confirm("temp-a", textMessage("101", "7", "42", "hi", now)))
		assert.Equal(t, []string{"101"}, keys(s.Items()))
	})

	t.Run("confirm unknown temp id inserts nothing", func(t *testing.T) {
		s := NewMessageStore()
		assert.False(t, s.Confirm("temp-x", textMessage("101", "7", "42", "hi", now)))
		assert.Equal(t, 0, s.Len())
	})

	t.Run("drop pending only removes sending entries", func(t *testing.T) {
		s := NewMessageStore()
		pending := textMessage("temp-a", "7", "42", "hi", now)
		pending.IsSending = true
		s.Append(pending, textMessage("2", "7", "42", "sent", now))

		assert.False(t, s.DropPending("2"))
		assert.True(t, s.DropPending("temp-a"))
		assert.Equal(t, []string{"2"}, keys(s.Items()))
	})

	t.Run("edit marks edited", func(t *testing.T) {
		s := NewMessageStore()
		s.Append(textMessage("1", "7", "42", "old", now))
		assert.True(t, s.ApplyEdit(textMessage("1", "7", "42", "new", now)))
		got, _ := s.Get("1")
		assert.Equal(t, "new", got.MessageText)
		assert.True(t, got.IsEdited)
	})

	t.Run("edit of unknown id is a no-op", func(t *testing.T) {
		s := NewMessageStore()
		s.Append(textMessage("1", "7", "42", "old", now))
		assert.False(t, s.ApplyEdit(textMessage("9", "7", "42", "new", now)))
		assert.Equal(t, []string{"1"}, keys(s.Items()))
	})

	t.Run("delete of unknown id is a no-op", func(t *testing.T) {
		s := NewMessageStore()
		s.Append(textMessage("1", "7", "42", "x", now))
		assert.False(t, s.ApplyDelete("5"))
		assert.True(t, s.ApplyDelete("1"))
		assert.Equal(t, 0, s.Len())
	})
}

// ============================================================================
// Display helpers
// ============================================================================

func TestGroupByDate(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	msgs := []Message{
		textMessage("1", "a", "b", "late night", time.Date(2024, 5, 1, 21, 30, 0, 0, time.UTC)),
		textMessage("2", "a", "b", "early", time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)),
		textMessage("3", "a", "b", "morning", time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC)),
	}

	groups := GroupByDate(msgs, loc)
	require.Len(t, groups, 2)
	assert.Equal(t, "2024-05-01", groups[0].Key())
	assert.Equal(t, []string{"1"}, keys(groups[0].Messages))
	assert.Equal(t, "2024-05-02", groups[1].Key())
	assert.Equal(t, []string{"2", "3"}, keys(groups[1].Messages))

	assert.Empty(t, GroupByDate(nil, loc))
}

func TestFilterMessages(t *testing.T) {
	now := time.Now()
	doc := Message{ID: "3", MessageType: KindDoc, Files: []FileAttachment{{Name: "Quarterly-Report.pdf"}}, CreatedAt: now}
	msgs := []Message{
		textMessage("1", "a", "b", "Hello there", now),
		textMessage("2", "a", "b", "bye", now),
		doc,
	}

	assert.Equal(t, []string{"1"}, keys(FilterMessages(msgs, "HELLO")))
	assert.Equal(t, []string{"3"}, keys(FilterMessages(msgs, "report")))
	assert.Len(t, FilterMessages(msgs, "  "), 3)
	assert.Empty(t, FilterMessages(msgs, "nothing"))
}

func TestDateLabel(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "Today", DateLabel(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "Yesterday", DateLabel(time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "Wednesday, May 1, 2024", DateLabel(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), now))
}
