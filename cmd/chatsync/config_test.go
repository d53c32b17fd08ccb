package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(t *testing.T, cfg *Config)
	}{
		{"default.base_url", "https://chat.example.com", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "https://chat.example.com", cfg.Default.BaseURL)
		}},
		{"default.socket_url", "wss://chat.example.com/socket", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "wss://chat.example.com/socket", cfg.Default.SocketURL)
		}},
		{"user.id", "7", func(t *testing.T, cfg *Config) {
			assert.Equal(t, "7", cfg.User.ID)
		}},
		{"cache.disabled", "true", func(t *testing.T, cfg *Config) {
			assert.True(t, cfg.Cache.Disabled)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := &Config{}
			require.NoError(t, setConfigValue(cfg, tt.key, tt.value))
			tt.check(t, cfg)
		})
	}

	t.Run("invalid keys", func(t *testing.T) {
		cfg := &Config{}
		assert.Error(t, setConfigValue(cfg, "base_url", "x"))
		assert.Error(t, setConfigValue(cfg, "default.nope", "x"))
		assert.Error(t, setConfigValue(cfg, "server.port", "x"))
	})
}

func TestCheckConfigValue(t *testing.T) {
	tests := []struct {
		key, value string
		ok         bool
	}{
		{"default.base_url", "https://chat.example.com", true},
		{"default.socket_url", "wss://chat.example.com/socket", true},
		{"default.base_url", "chat.example.com", false},
		{"default.socket_url", "ftp://chat.example.com", false},
		{"user.id", "", false},
		{"user.id", "42", true},
		{"cache.disabled", "yes", false},
		{"cache.disabled", "false", true},
		{"user.name", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := checkConfigValue(tt.key, tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHATSYNC_BASE_URL", "http://env.example.com")
	t.Setenv("CHATSYNC_USER_ID", "42")
	t.Setenv("CHATSYNC_TOKEN", "")

	cfg := &Config{Default: ConfigDefault{BaseURL: "http://file.example.com", Token: "from-file"}}
	applyEnv(cfg)
	assert.Equal(t, "http://env.example.com", cfg.Default.BaseURL)
	assert.Equal(t, "42", cfg.User.ID)
	assert.Equal(t, "from-file", cfg.Default.Token)
}

func TestParseChatRef(t *testing.T) {
	ref, err := parseChatRef("group", "9")
	require.NoError(t, err)
	assert.Equal(t, "group:9", ref.String())

	ref, err = parseChatRef("user", "42")
	require.NoError(t, err)
	assert.Equal(t, "user:42", ref.String())

	_, err = parseChatRef("channel", "1")
	assert.Error(t, err)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
	assert.NotContains(t, maskKey("abcdefghijklmnopqrstuvwxyz"), "ghijklmnop")
}
