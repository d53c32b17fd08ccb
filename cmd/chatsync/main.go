package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.chatsync/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	User    ConfigUser    `toml:"user"`
	Cache   ConfigCache   `toml:"cache"`
}

// ConfigDefault holds the backend endpoints.
type ConfigDefault struct {
	BaseURL   string `toml:"base_url"`
	SocketURL string `toml:"socket_url"`
	Token     string `toml:"token"`
}

// ConfigUser is the local identity announced on the realtime channel.
type ConfigUser struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// ConfigCache controls the on-disk message cache.
type ConfigCache struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.chatsync, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".chatsync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file, then applies CHATSYNC_*
// environment overrides (a .env file in the working directory is loaded
// first). If the file does not exist, it starts from a zero-value Config.
func loadConfig() (*Config, error) {
	cfg, err := readConfigFile()
	if err != nil {
		return nil, err
	}
	_ = godotenv.Load(".env")
	applyEnv(cfg)
	return cfg, nil
}

func readConfigFile() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"CHATSYNC_BASE_URL":   &cfg.Default.BaseURL,
		"CHATSYNC_SOCKET_URL": &cfg.Default.SocketURL,
		"CHATSYNC_TOKEN":      &cfg.Default.Token,
		"CHATSYNC_USER_ID":    &cfg.User.ID,
		"CHATSYNC_USER_NAME":  &cfg.User.Name,
		"CHATSYNC_CACHE_PATH": &cfg.Cache.Path,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "default.base_url").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "base_url":
			cfg.Default.BaseURL = value
		case "socket_url":
			cfg.Default.SocketURL = value
		case "token":
			cfg.Default.Token = value
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "user":
		switch field {
		case "id":
			cfg.User.ID = value
		case "name":
			cfg.User.Name = value
		default:
			return fmt.Errorf("unknown field %q in section [user]", field)
		}
	case "cache":
		switch field {
		case "path":
			cfg.Cache.Path = value
		case "disabled":
			cfg.Cache.Disabled, _ = strconv.ParseBool(value)
		default:
			return fmt.Errorf("unknown field %q in section [cache]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, user, cache)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Chat sync CLI",
	Long:  "Command-line client for the chat backend.\nBrowse users and groups, page through history, watch a chat live and send messages.",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
