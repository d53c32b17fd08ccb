package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var configRaw bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configPathCmd)
	configShowCmd.Flags().BoolVar(&configRaw, "raw", false, "Print the file as stored, without environment overrides")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change connection settings",
	Long: `Inspect or change the settings chatsync uses to reach the chat backend.

Settings live in ~/.chatsync/config.toml. CHATSYNC_* variables, from the
environment or a .env file, take precedence over the file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configRaw {
			path, err := configPath()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				fmt.Println("No settings saved yet. Start with 'chatsync init <base-url>'.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("cannot read config file: %w", err)
			}
			fmt.Print(string(data))
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		if shown.Default.Token != "" {
			shown.Default.Token = maskKey(shown.Default.Token)
		}
		if jsonOutput {
			return printJSON(shown)
		}
		data, err := toml.Marshal(shown)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.field> <value>",
	Short: "Save one setting",
	Long: `Save one setting to the config file.

Keys: default.base_url, default.socket_url, default.token, user.id,
user.name, cache.path, cache.disabled.`,
	Example: `  chatsync config set default.socket_url wss://chat.example.com/socket
  chatsync config set user.id 42
  chatsync config set cache.disabled true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := checkConfigValue(key, value); err != nil {
			return err
		}
		if err := updateConfig(key, value); err != nil {
			return err
		}
		if key == "default.token" {
			value = maskKey(value)
		}
		fmt.Printf("%s = %s\n", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:     "unset <section.field>",
	Short:   "Clear one setting",
	Example: "  chatsync config unset default.token",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := updateConfig(args[0], ""); err != nil {
			return err
		}
		fmt.Printf("%s cleared\n", args[0])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where the config file lives",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func updateConfig(key, value string) error {
	cfg, err := readConfigFile()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// checkConfigValue rejects values the session could not use.
func checkConfigValue(key, value string) error {
	switch key {
	case "default.base_url", "default.socket_url":
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, value)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("%s: unsupported scheme %q", key, u.Scheme)
		}
	case "user.id":
		if value == "" {
			return fmt.Errorf("user.id must not be empty")
		}
	case "cache.disabled":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("cache.disabled must be true or false, got %q", value)
		}
	}
	return nil
}
