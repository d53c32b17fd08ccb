package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Prismer-AI/chatsync"
)

var (
	// users
	usersAll      bool
	usersSearch   string
	usersPages    int
	usersFrequent bool

	// groups list
	groupsSearch string
	groupsPages  int

	// groups create
	groupsCreateMembers string
)

// loadPages resets a directory list and loads up to n pages.
func loadPages(ctx context.Context, n int, reset, more func(context.Context) error, state func() chatsync.PageState) error {
	if err := reset(ctx); err != nil {
		return err
	}
	for i := 1; i < n && state().HasMore; i++ {
		if err := more(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// users
// ============================================================================

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users you have chatted with (or all users with --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mustConfig()
		view := chatsync.ViewChatted
		if usersAll {
			view = chatsync.ViewAll
		}
		dir := chatsync.NewDirectory(getClient(cfg),
			chatsync.WithDirectoryLogger(newLogger()),
			chatsync.WithInitialView(view),
		)
		defer dir.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if usersSearch != "" {
			dir.SetSearch(chatsync.TabUsers, usersSearch)
		}
		if err := loadPages(ctx, usersPages, dir.LoadUsers, dir.MoreUsers, dir.UsersState); err != nil {
			return apiError(err)
		}

		users := dir.Users()
		if usersFrequent {
			users = dir.FrequentContacts()
		}
		if jsonOutput {
			return printJSON(users)
		}
		if len(users) == 0 {
			fmt.Println("No users found.")
			return nil
		}
		for _, u := range users {
			status := ""
			if u.Online {
				status = " [online]"
			}
			fmt.Printf("  %s: %s%s\n", u.ID, u.Name, status)
			if u.LastMessage != "" {
				fmt.Printf("      %s\n", u.LastMessage)
			}
		}
		st := dir.UsersState()
		fmt.Printf("\nPage %d of %d (%d users)\n", st.CurrentPage, st.TotalPages, st.TotalRecords)
		return nil
	},
}

// ============================================================================
// groups
// ============================================================================

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Manage groups",
	Long:  "List and create chat groups.",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mustConfig()
		dir := chatsync.NewDirectory(getClient(cfg), chatsync.WithDirectoryLogger(newLogger()))
		defer dir.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if groupsSearch != "" {
			dir.SetSearch(chatsync.TabGroups, groupsSearch)
		}
		if err := loadPages(ctx, groupsPages, dir.LoadGroups, dir.MoreGroups, dir.GroupsState); err != nil {
			return apiError(err)
		}

		groups := dir.Groups()
		if jsonOutput {
			return printJSON(groups)
		}
		if len(groups) == 0 {
			fmt.Println("No groups found.")
			return nil
		}
		for _, g := range groups {
			fmt.Printf("  %s: %s (%d members)\n", g.ID, g.Name, g.MemberCount)
		}
		return nil
	},
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mustConfig()
		dir := chatsync.NewDirectory(getClient(cfg), chatsync.WithDirectoryLogger(newLogger()))
		defer dir.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var members []string
		for _, m := range strings.Split(groupsCreateMembers, ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}

		if err := dir.CreateGroup(ctx, args[0], members); err != nil {
			return apiError(err)
		}
		fmt.Printf("Group created: %s (%d members)\n", strings.TrimSpace(args[0]), len(members))
		return nil
	},
}

func init() {
	usersCmd.Flags().BoolVarP(&usersAll, "all", "a", false, "List all users, not only chatted ones")
	usersCmd.Flags().StringVarP(&usersSearch, "search", "s", "", "Search term")
	usersCmd.Flags().IntVarP(&usersPages, "pages", "p", 1, "Number of pages to load")
	usersCmd.Flags().BoolVar(&usersFrequent, "frequent", false, "Show only frequent contacts")

	groupsListCmd.Flags().StringVarP(&groupsSearch, "search", "s", "", "Search term")
	groupsListCmd.Flags().IntVarP(&groupsPages, "pages", "p", 1, "Number of pages to load")

	groupsCreateCmd.Flags().StringVar(&groupsCreateMembers, "members", "", "Comma-separated list of member user IDs")

	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsCreateCmd)

	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(groupsCmd)
}
