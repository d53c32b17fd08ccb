package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/Prismer-AI/chatsync"
)

// newLogger returns a console logger on stderr; debug level with --verbose.
func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// mustConfig loads the config or exits.
func mustConfig() *Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Default.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "No backend configured. Run 'chatsync init <base-url>' first.")
		os.Exit(1)
	}
	return cfg
}

// getClient creates a REST client from the config.
func getClient(cfg *Config) *chatsync.Client {
	return chatsync.NewClient(cfg.Default.Token,
		chatsync.WithBaseURL(cfg.Default.BaseURL),
		chatsync.WithClientLogger(newLogger()),
	)
}

// getSession creates a session for the configured user, backed by the
// on-disk cache unless it is disabled.
func getSession(cfg *Config, opts ...chatsync.SessionOption) (*chatsync.Session, error) {
	if cfg.User.ID == "" {
		return nil, errors.New("no user id configured; run 'chatsync config set user.id <id>'")
	}
	if cfg.Default.SocketURL == "" {
		return nil, errors.New("no socket url configured; run 'chatsync config set default.socket_url <url>'")
	}

	base := []chatsync.SessionOption{
		chatsync.WithSocketURL(cfg.Default.SocketURL),
		chatsync.WithSocketToken(cfg.Default.Token),
		chatsync.WithLogger(newLogger()),
	}
	if !cfg.Cache.Disabled {
		path, err := cachePath(cfg)
		if err != nil {
			return nil, err
		}
		cache, err := chatsync.OpenBoltCache(path, 0)
		if err != nil {
			return nil, err
		}
		base = append(base, chatsync.WithCache(cache))
	}

	identity := chatsync.Identity{UserID: cfg.User.ID, Name: cfg.User.Name}
	return chatsync.NewSession(getClient(cfg), identity, append(base, opts...)...), nil
}

// parseChatRef turns "user <id>" or "group <id>" arguments into a ChatRef.
func parseChatRef(kind, id string) (chatsync.ChatRef, error) {
	var ref chatsync.ChatRef
	switch kind {
	case "user", "u", "direct":
		ref = chatsync.Direct(id)
	case "group", "g":
		ref = chatsync.GroupChat(id)
	default:
		return ref, fmt.Errorf("unknown chat type %q (valid: user, group)", kind)
	}
	if !ref.Valid() {
		return ref, chatsync.ErrNoChat
	}
	return ref, nil
}

// apiError formats a backend error for display.
func apiError(err error) error {
	var apiErr *chatsync.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error: %s: %s", apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("request failed: %w", err)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMessage(m chatsync.Message) {
	sender := m.SenderName
	if sender == "" {
		sender = m.FromUserID
	}
	ts := m.CreatedAt.Local().Format("15:04")
	edited := ""
	if m.IsEdited {
		edited = " (edited)"
	}
	if len(m.Files) == 0 {
		fmt.Printf("  [%s] %s: %s%s\n", ts, sender, m.MessageText, edited)
		return
	}
	for _, f := range m.Files {
		fmt.Printf("  [%s] %s: [%s] %s (%s)\n", ts, sender, m.MessageType, f.Name, humanSize(f.Size))
	}
}

// maskKey shows the first 4 and last 4 characters of a token.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func humanSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func cachePath(cfg *Config) (string, error) {
	if cfg.Cache.Path != "" {
		return cfg.Cache.Path, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

func printCacheStatus(cfg *Config) {
	path, err := cachePath(cfg)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return
	}
	fmt.Printf("  Path:        %s\n", path)
	info, err := os.Stat(path)
	if err != nil {
		fmt.Println("  Size:        (empty)")
		return
	}
	fmt.Printf("  Size:        %s\n", humanSize(info.Size()))
	cache, err := chatsync.OpenBoltCache(path, 0)
	if err != nil {
		fmt.Printf("  Error:       %v\n", err)
		return
	}
	defer cache.Close()
	chats, err := cache.Chats()
	if err != nil {
		fmt.Printf("  Error:       %v\n", err)
		return
	}
	fmt.Printf("  Chats:       %d\n", len(chats))
}
