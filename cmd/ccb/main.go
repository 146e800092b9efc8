package main

import (
	"os"

	"github.com/ccbridge/ccb/cli"
	"github.com/ccbridge/ccb/cmd"

	_ "github.com/ccbridge/ccb/pkg/provider/claude"
	_ "github.com/ccbridge/ccb/pkg/provider/codex"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"ccb",
		"Bridge controller sessions to terminal-hosted AI assistants",
	)

	rootCmd.AddCommand(cmd.NewAskCmd())
	rootCmd.AddCommand(cmd.NewPendCmd())
	rootCmd.AddCommand(cmd.NewBindCmd())
	rootCmd.AddCommand(cmd.NewAskdCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
