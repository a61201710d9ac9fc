// Package main is the chat CLI: it drives the streaming engine
// against a chat backend from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aria-ai/chat-engine/internal/api"
	"github.com/aria-ai/chat-engine/internal/config"
	"github.com/aria-ai/chat-engine/internal/engine"
	"github.com/aria-ai/chat-engine/internal/transport"
	"github.com/aria-ai/chat-engine/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles everything a subcommand needs.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	client *api.Client
	store  engine.KV
}

func newApp() (*app, error) {
	cfg := config.Load()

	// Development logger writes to stderr, keeping stdout clean for
	// streamed replies.
	log, err := logger.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	statePath := cfg.StateFile
	if statePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = os.TempDir()
		}
		statePath = filepath.Join(dir, "chat-engine", "state.json")
	}
	store, err := engine.NewFileKV(statePath)
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}

	opts := []api.Option{}
	if cfg.AuthToken != "" {
		opts = append(opts, api.WithAuthToken(cfg.AuthToken))
	}
	client := api.NewClient(cfg.BackendURL+cfg.APIPrefix, log, opts...)

	return &app{cfg: cfg, log: log, client: client, store: store}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chat",
		Short:         "Streaming chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSendCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

func newSendCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "send [prompt]",
		Short: "Send a prompt and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			prompt := strings.Join(args, " ")
			directory := engine.NewDirectory(a.client, a.store, a.cfg.SessionPageSize, a.log)

			if conversationID == "" {
				conversationID = directory.Selected()
			}
			if conversationID == "" {
				title := prompt
				if len(title) > 40 {
					title = title[:40]
				}
				conversationID, err = directory.Create(cmd.Context(), title)
				if err != nil {
					return fmt.Errorf("create conversation: %w", err)
				}
				directory.Select(conversationID)
				fmt.Fprintln(cmd.ErrOrStderr(), "conversation:", conversationID)
			}

			return streamExchange(cmd.Context(), a, conversationID, prompt)
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id (defaults to the selected one)")
	return cmd
}

// streamExchange runs one exchange, printing reply deltas as they
// arrive.
func streamExchange(ctx context.Context, a *app, conversationID, prompt string) error {
	terminal := make(chan engine.Snapshot, 1)
	printed := 0

	subscriber := func(s engine.Snapshot) {
		if s.InProgress != nil && len(s.InProgress.Content) > printed {
			fmt.Print(s.InProgress.Content[printed:])
			printed = len(s.InProgress.Content)
		}
		if s.Phase.Terminal() {
			select {
			case terminal <- s:
			default:
			}
		}
	}

	var topts []transport.Option
	if a.cfg.AuthToken != "" {
		topts = append(topts, transport.WithAuthToken(a.cfg.AuthToken))
	}
	selector := transport.New(a.cfg.BackendURL, a.cfg.APIPrefix, a.log, topts...)
	controller := engine.NewController(selector, a.store, subscriber, a.log)
	controller.LoadConversation(conversationID)

	if err := controller.Send(ctx, prompt, conversationID); err != nil {
		return err
	}

	select {
	case s := <-terminal:
		fmt.Println()
		if s.Phase == engine.PhaseErrored {
			return fmt.Errorf("exchange failed: %s", s.Err)
		}
		return nil
	case <-ctx.Done():
		controller.Stop()
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		controller.Stop()
		return fmt.Errorf("timed out waiting for reply")
	}
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage conversations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			d := engine.NewDirectory(a.client, a.store, a.cfg.SessionPageSize, a.log)
			if err := d.Refresh(cmd.Context()); err != nil {
				return err
			}
			for d.HasMore() {
				if err := d.LoadMore(cmd.Context()); err != nil {
					return err
				}
			}

			selected := d.Selected()
			for _, c := range d.Conversations() {
				marker := " "
				if c.ConversationID == selected {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, c.ConversationID, c.Title)
			}
			return nil
		},
	}

	create := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a conversation and select it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			d := engine.NewDirectory(a.client, a.store, a.cfg.SessionPageSize, a.log)
			id, err := d.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			d.Select(id)
			fmt.Println(id)
			return nil
		},
	}

	var clearMemory bool
	del := &cobra.Command{
		Use:   "delete [conversation-id...]",
		Short: "Delete one or more conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			d := engine.NewDirectory(a.client, a.store, a.cfg.SessionPageSize, a.log)
			if len(args) == 1 {
				if err := d.Delete(cmd.Context(), args[0], clearMemory); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			}
			count, err := d.BatchDelete(cmd.Context(), args, clearMemory)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d of %d\n", count, len(args))
			return nil
		},
	}
	del.Flags().BoolVar(&clearMemory, "clear-memory", false, "also clear the backend's chat memory")

	sel := &cobra.Command{
		Use:   "select [conversation-id]",
		Short: "Select the active conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			d := engine.NewDirectory(a.client, a.store, a.cfg.SessionPageSize, a.log)
			d.Select(args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, del, sel)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Print a conversation's history, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			conversationID := ""
			if len(args) > 0 {
				conversationID = args[0]
			} else {
				d := engine.NewDirectory(a.client, a.store, a.cfg.SessionPageSize, a.log)
				conversationID = d.Selected()
			}
			if conversationID == "" {
				return fmt.Errorf("no conversation selected")
			}

			p := engine.NewPaginator(a.client, a.cfg.HistoryPageSize, a.log)
			if err := p.Load(cmd.Context(), conversationID); err != nil {
				return err
			}
			for i := 1; i < pages && p.HasMore(); i++ {
				if err := p.LoadOlder(cmd.Context()); err != nil {
					return err
				}
			}

			for _, m := range p.Messages() {
				fmt.Printf("[%s] %s\n", m.Role, m.Content)
			}
			if p.HasMore() {
				a.log.Info("more history available", zap.String("conversation_id", conversationID))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "number of history pages to fetch")
	return cmd
}
