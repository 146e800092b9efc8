package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccbridge/ccb/cli"
	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/logging"
	"github.com/ccbridge/ccb/pkg/binding"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/pkg/provider"
	"github.com/ccbridge/ccb/pkg/sentinel"
)

// NewPendCmd returns the pend command: recall the latest assistant
// reply from the bound session's stored transcript, without going
// through the daemon.
func NewPendCmd() *cobra.Command {
	var providerName string
	var wait bool
	var follow bool
	var timeoutSecs int

	cmd := &cobra.Command{
		Use:   "pend",
		Short: "Print the latest assistant reply from the bound session",
		Long: "Reads the most recent assistant message from the provider's stored " +
			"transcript for this project's bound session. --wait blocks until a " +
			"reply arrives; --follow keeps streaming replies as they land.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)
			return handler.Handle(runPend(cmd, providerName, wait, follow, timeoutSecs, opts.JSONOutput))
		},
	}

	cli.AddProviderFlag(cmd.Flags(), &providerName)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until a reply arrives")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming replies as they arrive")
	cmd.Flags().IntVarP(&timeoutSecs, "timeout", "t", 0, "Wait timeout in seconds (default from config)")
	return cmd
}

func runPend(cmd *cobra.Command, providerName string, wait, follow bool, timeoutSecs int, jsonOut bool) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	wd, err := paths.WorkDir()
	if err != nil {
		return err
	}

	b, err := binding.Resolve(wd, providerName)
	if err != nil {
		return err
	}
	adapter, err := provider.Get(providerName)
	if err != nil {
		return err
	}

	if wait || follow {
		timeout := cfg.AskTimeout()
		if timeoutSecs > 0 {
			timeout = time.Duration(timeoutSecs) * time.Second
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return streamReplies(ctx, wd, providerName, adapter, b, follow, jsonOut)
	}

	msg, err := adapter.Latest(b.SessionPath)
	if err != nil {
		return err
	}
	return printMessage(msg, jsonOut)
}

// streamReplies follows the bound transcript, re-resolving the binding
// when a session switch rewrites it mid-stream. With follow it runs
// until the context ends; otherwise it returns after the first reply.
func streamReplies(ctx context.Context, wd, providerName string, adapter provider.Adapter, b *binding.Binding, follow, jsonOut bool) error {
	fol, ok := adapter.(provider.Follower)
	if !ok {
		return errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("provider %s cannot stream replies", providerName))
	}

	logger := logging.NewLogger("pend")
	watcher, err := binding.NewWatcher(wd, providerName, logger)
	if err != nil {
		return err
	}
	go watcher.Run(ctx)

	msgs, err := fol.Follow(ctx, b.SessionPath)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			if follow {
				return nil
			}
			return errors.NoReply(b.SessionPath)
		case <-watcher.Changed:
			// The binding was rewritten under us. Re-resolve and
			// follow the new session instead.
			nb, err := binding.Resolve(wd, providerName)
			if err != nil {
				return err
			}
			if nb.SessionPath == b.SessionPath {
				continue
			}
			b = nb
			msgs, err = fol.Follow(ctx, b.SessionPath)
			if err != nil {
				return err
			}
		case msg, ok := <-msgs:
			if !ok {
				return errors.NoReply(b.SessionPath)
			}
			if err := printMessage(&msg, jsonOut); err != nil {
				return err
			}
			if !follow {
				return nil
			}
		}
	}
}

func printMessage(msg *provider.Message, jsonOut bool) error {
	if jsonOut {
		out := *msg
		out.Text = sentinel.StripTrailingMarkers(out.Text)
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(sentinel.StripTrailingMarkers(msg.Text))
	return nil
}
