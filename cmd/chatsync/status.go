package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Prismer-AI/chatsync"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and backend status",
	Long:  "Display the current configuration, cache usage, and check that the backend answers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, "(not set)"))
		fmt.Printf("  Socket URL:  %s\n", valueOrDefault(cfg.Default.SocketURL, "(not set)"))
		if cfg.Default.Token != "" {
			fmt.Printf("  Token:       %s\n", maskKey(cfg.Default.Token))
		} else {
			fmt.Println("  Token:       (not set)")
		}

		fmt.Println()
		fmt.Println("User:")
		if cfg.User.ID != "" {
			fmt.Printf("  ID:          %s\n", cfg.User.ID)
			fmt.Printf("  Name:        %s\n", valueOrDefault(cfg.User.Name, "(not set)"))
		} else {
			fmt.Println("  ID:          (not set)")
		}

		fmt.Println()
		fmt.Println("Cache:")
		if cfg.Cache.Disabled {
			fmt.Println("  Disabled")
		} else {
			printCacheStatus(cfg)
		}

		if cfg.Default.BaseURL == "" {
			return nil
		}

		fmt.Println()
		fmt.Println("Live status:")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		start := time.Now()
		page, err := getClient(cfg).GetUsers(ctx, chatsync.UserQuery{Page: 1, PageSize: 1, View: chatsync.ViewAll})
		if err != nil {
			fmt.Printf("  Backend error: %v\n", err)
			return nil
		}
		fmt.Printf("  Backend:     reachable (%s)\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Users:       %d\n", page.Pagination.TotalRecords)
		return nil
	},
}
