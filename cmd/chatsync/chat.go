package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Prismer-AI/chatsync"
)

var (
	// messages
	messagesPages  int
	messagesSearch string

	// watch
	watchMetricsAddr string

	// send
	sendFiles   []string
	sendImage   bool
	sendTimeout time.Duration
)

// openChat opens the chat named by args and waits for its first page.
func openChat(ctx context.Context, args []string, opts ...chatsync.SessionOption) (*chatsync.Session, *chatsync.Conversation, error) {
	ref, err := parseChatRef(args[0], args[1])
	if err != nil {
		return nil, nil, err
	}
	session, err := getSession(mustConfig(), opts...)
	if err != nil {
		return nil, nil, err
	}
	conv, err := session.Open(ctx, ref)
	if err != nil {
		session.Close()
		return nil, nil, err
	}
	select {
	case <-conv.Ready():
	case <-ctx.Done():
		session.Close()
		return nil, nil, ctx.Err()
	}
	return session, conv, nil
}

// waitConnected blocks until the conversation's channel is connected.
func waitConnected(ctx context.Context, conv *chatsync.Conversation) error {
	connected := make(chan struct{})
	var once sync.Once
	conv.On(chatsync.EventConnectionChanged, func(_ string, payload any) {
		if payload == chatsync.StateConnected {
			once.Do(func() { close(connected) })
		}
	})
	if conv.ConnectionState() == chatsync.StateConnected {
		return nil
	}
	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for realtime connection: %w", ctx.Err())
	}
}

func printDay(g chatsync.DateGroup) {
	fmt.Printf("── %s ──\n", chatsync.DateLabel(g.Day, time.Now()))
	for _, m := range g.Messages {
		printMessage(m)
	}
}

// ============================================================================
// messages
// ============================================================================

var messagesCmd = &cobra.Command{
	Use:   "messages <user|group> <id>",
	Short: "Show the message history of a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		session, conv, err := openChat(ctx, args, chatsync.WithReconnect(-1, 0))
		if err != nil {
			return err
		}
		defer session.Close()

		if messagesSearch != "" {
			if err := conv.SearchNow(ctx, messagesSearch); err != nil {
				return apiError(err)
			}
		}
		for i := 1; i < messagesPages && conv.PageState().HasMore; i++ {
			if err := conv.LoadOlder(ctx); err != nil && !errors.Is(err, chatsync.ErrFetchInFlight) {
				return apiError(err)
			}
		}

		if jsonOutput {
			return printJSON(conv.Messages())
		}
		days := conv.View(time.Local)
		if len(days) == 0 {
			fmt.Println("No messages found.")
			return nil
		}
		for _, g := range days {
			printDay(g)
		}
		st := conv.PageState()
		fmt.Printf("\n%d of %d messages loaded (page %d of %d)\n", len(conv.Messages()), st.TotalRecords, st.CurrentPage, st.TotalPages)
		return nil
	},
}

// ============================================================================
// watch
// ============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch <user|group> <id>",
	Short: "Print a chat's messages as they arrive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []chatsync.SessionOption
		if watchMetricsAddr != "" {
			reg := prometheus.NewRegistry()
			opts = append(opts, chatsync.WithMetrics(chatsync.NewMetrics(reg)))
			srv := &http.Server{Addr: watchMetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
				}
			}()
			defer srv.Close()
		}

		session, conv, err := openChat(ctx, args, opts...)
		if err != nil {
			return err
		}
		defer session.Close()

		var mu sync.Mutex
		seen := make(map[string]bool)
		for _, g := range conv.Groups(time.Local) {
			printDay(g)
			for _, m := range g.Messages {
				seen[m.ID] = true
			}
		}

		conv.On(chatsync.EventMessagesChanged, func(string, any) {
			mu.Lock()
			defer mu.Unlock()
			for _, m := range conv.Messages() {
				if seen[m.ID] || m.IsSending {
					continue
				}
				seen[m.ID] = true
				printMessage(m)
			}
		})
		conv.On(chatsync.EventTypingChanged, func(_ string, payload any) {
			if typing, _ := payload.(bool); typing {
				fmt.Println("  ... typing")
			}
		})
		conv.On(chatsync.EventConnectionChanged, func(_ string, payload any) {
			fmt.Fprintf(os.Stderr, "connection: %v\n", payload)
		})
		conv.On(chatsync.EventPresenceChanged, func(string, any) {
			fmt.Fprintf(os.Stderr, "online: %s\n", strings.Join(session.Presence().Online(), ", "))
		})

		fmt.Fprintf(os.Stderr, "Watching %s. Press Ctrl+C to stop.\n", conv.Ref())
		<-ctx.Done()
		return nil
	},
}

// ============================================================================
// send
// ============================================================================

var sendCmd = &cobra.Command{
	Use:   "send <user|group> <id> [message]",
	Short: "Send a text message or files to a chat",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		session, conv, err := openChat(ctx, args[:2], chatsync.WithSendTimeout(sendTimeout))
		if err != nil {
			return err
		}
		defer session.Close()

		draft := conv.Compose()
		if len(args) == 3 {
			if err := draft.SetText(args[2]); err != nil {
				return err
			}
		}
		if len(sendFiles) > 0 {
			kind := chatsync.KindDoc
			if sendImage {
				kind = chatsync.KindImage
			}
			var files []chatsync.LocalFile
			for _, path := range sendFiles {
				f, err := chatsync.FileFromPath(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}
			n, err := draft.Attach(kind, files...)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Some files were not attached:\n%v\n", err)
			}
			if n == 0 {
				return errors.New("no files to send")
			}
			fmt.Printf("Attached %d file(s), %s\n", n, humanSize(draft.TotalSize()))
		}

		if err := waitConnected(ctx, conv); err != nil {
			return err
		}
		pending, err := conv.Send(ctx)
		if err != nil {
			return err
		}
		msg, err := pending.Wait(ctx)
		if err != nil {
			return apiError(err)
		}

		if jsonOutput {
			return printJSON(msg)
		}
		fmt.Printf("Message sent to %s\n", conv.Ref())
		fmt.Printf("  Message ID: %s\n", msg.ID)
		return nil
	},
}

func init() {
	messagesCmd.Flags().IntVarP(&messagesPages, "pages", "p", 1, "Number of pages to load")
	messagesCmd.Flags().StringVarP(&messagesSearch, "search", "s", "", "Search term")

	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")

	sendCmd.Flags().StringArrayVarP(&sendFiles, "file", "f", nil, "Attach a file (repeatable)")
	sendCmd.Flags().BoolVar(&sendImage, "image", false, "Send attachments as images")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "How long to wait for the server")

	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sendCmd)
}
