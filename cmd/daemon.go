package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ccbridge/ccb/cli"
	"github.com/ccbridge/ccb/internal/daemon/askd"
	"github.com/ccbridge/ccb/internal/daemon/liveness"
	"github.com/ccbridge/ccb/internal/daemon/server"
	"github.com/ccbridge/ccb/internal/daemon/state"
	"github.com/ccbridge/ccb/logging"
	"github.com/ccbridge/ccb/pkg/client"
	"github.com/ccbridge/ccb/pkg/lock"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/pkg/project"
)

// NewAskdCmd returns the askd daemon command with subcommands.
func NewAskdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "askd",
		Short: "Request daemon",
		Long:  "Owns one assistant process per project and provider, serializing requests through it.",
	}

	cmd.AddCommand(newAskdStartCmd())
	cmd.AddCommand(newAskdStopCmd())
	cmd.AddCommand(newAskdStatusCmd())
	return cmd
}

func newAskdStartCmd() *cobra.Command {
	var providerName string
	var dir string
	var parentPID int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the request daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("askd")

			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if providerName == "" {
				providerName = cfg.DefaultProvider
			}
			wd := dir
			if wd == "" {
				wd, err = paths.WorkDir()
				if err != nil {
					return err
				}
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			key := project.Identity(wd)
			runDir := paths.RunDir()

			// Validate the project scope first: the anchor rule refuses
			// to auto-create .ccb in a nested directory when an
			// ancestor project exists. Released right away so daemons
			// for other providers can start; the per-provider run-dir
			// lock below is the one held for the daemon's lifetime.
			projLock, err := lock.Acquire(wd)
			if err != nil {
				return err
			}
			_ = projLock.Release()

			lk, err := lock.AcquireFile(state.LockPath(runDir, key, providerName))
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer lk.Release()

			store := state.NewStore(runDir, key, providerName)
			spawn := askd.CommandSpawner(cfg.Provider(providerName).Command, wd, logger)
			d := askd.New(askd.Options{
				Provider:  providerName,
				WorkDir:   wd,
				ParentPID: parentPID,
				Timeout:   cfg.AskTimeout(),
				Spawn:     spawn,
				State:     store,
				Logger:    logger,
			})
			srv := server.New(d, providerName, logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			mon := liveness.New(parentPID, cancel, logger)

			logger.WithFields(map[string]interface{}{
				"pid":      os.Getpid(),
				"provider": providerName,
				"work_dir": wd,
			}).Info("Starting request daemon")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				select {
				case <-stop:
					logger.Info("Received stop signal")
					cancel()
				case <-gctx.Done():
				}
				return nil
			})
			g.Go(func() error {
				mon.Run(gctx)
				return nil
			})
			g.Go(func() error {
				// Pipe breakage or spawn failure takes the whole
				// daemon down with it.
				return d.Run(gctx)
			})
			g.Go(func() error {
				err := srv.ListenAndServe(state.SocketPath(runDir, key, providerName))
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
				return nil
			})
			return g.Wait()
		},
	}

	cli.AddProviderFlag(cmd.Flags(), &providerName)
	cmd.Flags().StringVar(&dir, "dir", "", "Project directory to serve (default: working directory)")
	cmd.Flags().IntVar(&parentPID, "parent", 0, "Controller pid to watch; daemon exits when it is gone")
	return cmd
}

func newAskdStopCmd() *cobra.Command {
	var providerName string
	var dir string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running request daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := resolveDaemonScope(cmd, providerName, dir)
			if err != nil {
				return err
			}
			st, err := store.Read()
			if err != nil {
				return err
			}
			if !st.IsLive() {
				fmt.Println("Daemon is not running")
				_ = store.Delete()
				return nil
			}
			if err := syscall.Kill(st.PID, syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to signal daemon (pid %d): %w", st.PID, err)
			}
			fmt.Printf("Stopped daemon (pid %d)\n", st.PID)
			return nil
		},
	}

	cli.AddProviderFlag(cmd.Flags(), &providerName)
	cmd.Flags().StringVar(&dir, "dir", "", "Project directory (default: working directory)")
	return cmd
}

func newAskdStatusCmd() *cobra.Command {
	var providerName string
	var dir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the request daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, socketPath, err := resolveDaemonScope(cmd, providerName, dir)
			if err != nil {
				return err
			}
			st, err := store.Read()
			if err != nil {
				return err
			}
			if !st.IsLive() {
				fmt.Println("Daemon is not running")
				return nil
			}

			c := client.NewRemoteClient(socketPath)
			defer c.Close()
			live, err := c.State(cmd.Context())
			if err != nil {
				fmt.Printf("Daemon recorded (pid %d) but not answering\n", st.PID)
				return nil
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				data, _ := json.MarshalIndent(live, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("Daemon running (pid %d)\n", st.PID)
			fmt.Printf("  Provider:    %v\n", live["provider"])
			fmt.Printf("  Phase:       %v\n", live["phase"])
			fmt.Printf("  Queue depth: %v\n", live["queue_depth"])
			return nil
		},
	}

	cli.AddProviderFlag(cmd.Flags(), &providerName)
	cmd.Flags().StringVar(&dir, "dir", "", "Project directory (default: working directory)")
	return cmd
}

func resolveDaemonScope(cmd *cobra.Command, providerName, dir string) (*state.Store, string, error) {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	wd := dir
	if wd == "" {
		wd, err = paths.WorkDir()
		if err != nil {
			return nil, "", err
		}
	}
	key := project.Identity(wd)
	runDir := paths.RunDir()
	return state.NewStore(runDir, key, providerName),
		state.SocketPath(runDir, key, providerName), nil
}
