package chatsync

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestHistory(n int) []Message {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]Message, 0, n+1)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, textMessage(strconv.Itoa(i), "7", "42", "m"+strconv.Itoa(i), base.Add(time.Duration(i)*time.Minute)))
	}
	pending := textMessage("temp-x", "7", "42", "unsent", base)
	pending.TempID, pending.IsSending = "temp-x", true
	return append(msgs, pending)
}

func TestCaches(t *testing.T) {
	open := map[string]func(t *testing.T, limit int) Cache{
		"memory": func(t *testing.T, limit int) Cache { return NewMemoryCache(limit) },
		"bolt": func(t *testing.T, limit int) Cache {
			c, err := OpenBoltCache(filepath.Join(t.TempDir(), "cache.db"), limit)
			require.NoError(t, err)
			return c
		},
	}

	for name, newCache := range open {
		t.Run(name, func(t *testing.T) {
			t.Run("round trip drops pending", func(t *testing.T) {
				c := newCache(t, 0)
				defer c.Close()
				ref := Direct("42")

				require.NoError(t, c.Save(ref, makeTestHistory(3)))
				msgs, err := c.Load(ref)
				require.NoError(t, err)
				assert.Equal(t, []string{"1", "2", "3"}, keys(msgs))
				assert.Equal(t, "m2", msgs[1].MessageText)
				assert.True(t, msgs[2].CreatedAt.Equal(time.Date(2024, 5, 1, 10, 3, 0, 0, time.UTC)))
			})

			t.Run("keeps newest", func(t *testing.T) {
				c := newCache(t, 2)
				defer c.Close()
				ref := GroupChat("9")

				require.NoError(t, c.Save(ref, makeTestHistory(5)))
				msgs, err := c.Load(ref)
				require.NoError(t, err)
				assert.Equal(t, []string{"4", "5"}, keys(msgs))
			})

			t.Run("unknown chat is empty", func(t *testing.T) {
				c := newCache(t, 0)
				defer c.Close()
				msgs, err := c.Load(Direct("nobody"))
				require.NoError(t, err)
				assert.Empty(t, msgs)
			})

			t.Run("direct and group chats are separate", func(t *testing.T) {
				c := newCache(t, 0)
				defer c.Close()
				require.NoError(t, c.Save(Direct("1"), makeTestHistory(1)))
				msgs, err := c.Load(GroupChat("1"))
				require.NoError(t, err)
				assert.Empty(t, msgs)
			})
		})
	}
}

func TestBoltCacheReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := OpenBoltCache(path, 0)
	require.NoError(t, err)
	require.NoError(t, c.Save(Direct("42"), makeTestHistory(2)))
	require.NoError(t, c.Save(GroupChat("9"), makeTestHistory(1)))
	require.NoError(t, c.Close())

	c, err = OpenBoltCache(path, 0)
	require.NoError(t, err)
	defer c.Close()

	chats, err := c.Chats()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:42", "group:9"}, chats)

	msgs, err := c.Load(Direct("42"))
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
