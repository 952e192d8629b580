package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sphexbot/internal/config"
	"sphexbot/internal/core"
	"sphexbot/internal/gateway/console"
)

type dispatchOptions struct {
	sender string
	group  string
}

func newDispatchCmd(root *rootOptions) *cobra.Command {
	opts := &dispatchOptions{}
	cmd := &cobra.Command{
		Use:   "dispatch <text>...",
		Short: "Run one message through the processors and print the replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, root, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.sender, "sender", "", "Sender id and nick (defaults to console.sender).")
	cmd.Flags().StringVar(&opts.group, "group", "", "Group the message is sent to; empty for a private chat.")
	return cmd
}

func runDispatch(cmd *cobra.Command, root *rootOptions, opts *dispatchOptions, text string) error {
	cfg, logger, err := root.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	consoleCfg := cfg.Console
	if opts.sender != "" {
		consoleCfg.Sender = opts.sender
	}
	if opts.group != "" {
		consoleCfg.Group = opts.group
	}
	// Replies are written the same way the console gateway writes them.
	out := console.New(consoleCfg, nil, nil, cmd.OutOrStdout(), logger)

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, out)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()
	if err := a.setup(ctx); err != nil {
		return err
	}

	return a.router.Dispatch(ctx, consoleMessage(consoleCfg, text))
}

func consoleMessage(cfg config.ConsoleConfig, text string) core.Message {
	sender := strings.TrimSpace(cfg.Sender)
	if sender == "" {
		sender = "console"
	}
	group := strings.TrimSpace(cfg.Group)
	chatID := sender
	if group != "" {
		chatID = group
	}
	return core.Message{
		Channel:    console.Channel,
		SenderID:   sender,
		SenderName: sender,
		ChatID:     chatID,
		GroupID:    group,
		Text:       text,
		Timestamp:  time.Now(),
	}
}
