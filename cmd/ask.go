package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccbridge/ccb/cli"
	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/client"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/pkg/project"
	"github.com/ccbridge/ccb/util/atomicfile"
)

// NewAskCmd returns the ask command: send one request through the
// project's request daemon and block for the reply.
func NewAskCmd() *cobra.Command {
	var providerName string
	var timeoutSecs int
	var reqID string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a request to the project's assistant and wait for the reply",
		Long: "Sends a message through the project's request daemon, starting one " +
			"if none is running, and prints the assistant's reply. With no " +
			"argument the message is read from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			body := ""
			if len(args) == 1 {
				body = args[0]
			} else {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return handler.Handle(err)
				}
				body = string(data)
			}
			if strings.TrimSpace(body) == "" {
				return handler.Handle(errors.New(errors.ErrCodeInvalidInput, "empty message"))
			}

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return handler.Handle(err)
			}
			if providerName == "" {
				providerName = cfg.DefaultProvider
			}

			wd, err := paths.WorkDir()
			if err != nil {
				return handler.Handle(err)
			}
			if err := paths.EnsureDirs(); err != nil {
				return handler.Handle(err)
			}

			key := project.Identity(wd)
			c, err := client.EnsureDaemon(cmd.Context(), paths.RunDir(), key, providerName, wd)
			if err != nil {
				return handler.Handle(err)
			}
			defer c.Close()

			timeout := cfg.AskTimeout()
			if timeoutSecs > 0 {
				timeout = time.Duration(timeoutSecs) * time.Second
			}

			res, err := c.Ask(cmd.Context(), body, client.AskOptions{
				ReqID:   reqID,
				Timeout: timeout,
			})
			if err != nil {
				return handler.Handle(err)
			}
			if outputPath != "" {
				if err := atomicfile.WriteFile(outputPath, []byte(res.Reply), 0644); err != nil {
					return handler.Handle(errors.Wrap(err, errors.ErrCodeInternal, "writing reply file failed"))
				}
				return nil
			}
			fmt.Println(res.Reply)
			return nil
		},
	}

	cli.AddProviderFlag(cmd.Flags(), &providerName)
	cmd.Flags().IntVarP(&timeoutSecs, "timeout", "t", 0, "Reply timeout in seconds (default from config)")
	cmd.Flags().StringVar(&reqID, "req-id", "", "Use this request id instead of a generated one")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the reply to a file instead of stdout")
	return cmd
}
