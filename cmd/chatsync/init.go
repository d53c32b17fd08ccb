package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	initSocketURL string
	initToken     string
	initUserID    string
	initUserName  string
)

func init() {
	initCmd.Flags().StringVar(&initSocketURL, "socket-url", "", "Realtime endpoint (default: <base-url>/socket)")
	initCmd.Flags().StringVar(&initToken, "token", "", "Bearer token")
	initCmd.Flags().StringVar(&initUserID, "user-id", "", "Local user id")
	initCmd.Flags().StringVar(&initUserName, "user-name", "", "Local user display name")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <base-url>",
	Short: "Store backend endpoints and identity in ~/.chatsync/config.toml",
	Long:  "Initialize the chatsync CLI by storing the backend URL, realtime endpoint and local identity.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL := strings.TrimRight(args[0], "/")

		cfg, err := readConfigFile()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Default.BaseURL = baseURL
		switch {
		case initSocketURL != "":
			cfg.Default.SocketURL = initSocketURL
		case cfg.Default.SocketURL == "":
			cfg.Default.SocketURL = baseURL + "/socket"
		}
		if initToken != "" {
			cfg.Default.Token = initToken
		}
		if initUserID != "" {
			cfg.User.ID = initUserID
		}
		if initUserName != "" {
			cfg.User.Name = initUserName
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Configuration saved to %s\n", path)
		if cfg.User.ID == "" {
			fmt.Println("No user id set. Run 'chatsync config set user.id <id>' before opening chats.")
		}
		return nil
	},
}
