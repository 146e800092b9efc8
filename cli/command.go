// Package cli holds the shared cobra scaffolding for ccb commands:
// standard flags, logger wiring, and the error-to-exit-code mapping.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ccbridge/ccb/config"
	"github.com/ccbridge/ccb/logging"
)

// CommandOptions holds common options for ccb commands.
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with standard ccb flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to .ccb/config.yml")

	return cmd
}

// AddProviderFlag registers the shared --provider flag on fs. Every
// command that touches a provider spells the flag the same way.
func AddProviderFlag(fs *pflag.FlagSet, target *string) {
	fs.StringVarP(target, "provider", "p", "", "Provider to use (default from config)")
}

// GetLogger creates a logger based on command flags.
func GetLogger(cmd *cobra.Command) *logrus.Logger {
	entry := logging.NewLogger("ccb-cli")
	logger := entry.Logger

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// GetOptions extracts common options from a command.
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig resolves the configuration for a command: the --config
// flag when set, otherwise upward search from the working directory,
// otherwise defaults.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}
