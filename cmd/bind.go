package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccbridge/ccb/cli"
	"github.com/ccbridge/ccb/config"
	"github.com/ccbridge/ccb/errors"
	"github.com/ccbridge/ccb/pkg/binding"
	"github.com/ccbridge/ccb/pkg/lock"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/pkg/project"
	"github.com/ccbridge/ccb/pkg/registry"
	"github.com/ccbridge/ccb/util/atomicfile"
)

// NewBindCmd returns the bind command: record which provider session
// belongs to this project directory.
func NewBindCmd() *cobra.Command {
	var sessionID string
	var sessionPath string
	var show bool
	var off bool

	cmd := &cobra.Command{
		Use:   "bind <provider>",
		Short: "Bind a provider session to this project directory",
		Long: "Records the provider session that answers for this project, in the " +
			"project's local state and in the global session registry. --show " +
			"prints the current binding; --off deactivates it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)
			return handler.Handle(runBind(args[0], sessionID, sessionPath, show, off, opts.JSONOutput))
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "Provider session id (default: session file basename)")
	cmd.Flags().StringVar(&sessionPath, "session-path", "", "Path to the provider's session transcript")
	cmd.Flags().BoolVar(&show, "show", false, "Print the current binding instead of writing one")
	cmd.Flags().BoolVar(&off, "off", false, "Deactivate the current binding")
	return cmd
}

func runBind(providerName, sessionID, sessionPath string, show, off, jsonOut bool) error {
	wd, err := paths.WorkDir()
	if err != nil {
		return err
	}

	if show {
		b, err := binding.Resolve(wd, providerName)
		if err != nil {
			return err
		}
		if jsonOut {
			data, err := json.MarshalIndent(b, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("%s -> %s (%s)\n", providerName, b.SessionID, b.SessionPath)
		return nil
	}

	if off {
		if err := binding.Deactivate(wd, providerName); err != nil {
			return err
		}
		fmt.Printf("Deactivated %s binding in %s\n", providerName, wd)
		return nil
	}

	if sessionPath == "" {
		return errors.New(errors.ErrCodeInvalidInput, "--session-path is required to bind")
	}
	sessionPath, err = resolveSessionPath(providerName, sessionPath)
	if err != nil {
		return err
	}
	if sessionID == "" {
		base := filepath.Base(sessionPath)
		sessionID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	// Binding initializes .ccb on first use; take the instance lock so
	// the anchor rule applies and concurrent writers serialize.
	lk, err := lock.Acquire(wd)
	if err != nil {
		return err
	}
	defer lk.Release()

	b, err := binding.Bind(wd, providerName, sessionID, sessionPath)
	if err != nil {
		return err
	}

	if err := registerBinding(wd, providerName, b); err != nil {
		return err
	}

	fmt.Printf("Bound %s session %s to %s\n", providerName, sessionID, wd)
	return nil
}

// resolveSessionPath absolutizes a transcript path. Relative paths
// resolve against the provider's session root (CCB_<P>_ROOT /
// CCB_PROVIDER_ROOT, then the configured root), falling back to the
// working directory.
func resolveSessionPath(providerName, sessionPath string) (string, error) {
	if filepath.IsAbs(sessionPath) {
		return sessionPath, nil
	}
	root := paths.ProviderRoot(providerName)
	if root == "" {
		if cfg, err := config.LoadDefault(); err == nil {
			root = cfg.Provider(providerName).Root
		}
	}
	if root != "" {
		return filepath.Join(root, sessionPath), nil
	}
	return filepath.Abs(sessionPath)
}

// registerBinding mirrors the project's binding into the global session
// registry so other controllers can find this project by its ccb
// session id.
func registerBinding(wd, providerName string, b *binding.Binding) error {
	ccbID, err := ensureCCBSessionID(wd)
	if err != nil {
		return err
	}

	reg := registry.New("")
	entry, err := reg.Lookup(ccbID)
	if err != nil {
		entry = &registry.Entry{
			CCBSessionID: ccbID,
			CCBProjectID: project.Identity(wd),
			WorkDir:      wd,
			Providers:    map[string]registry.ProviderBinding{},
		}
	}
	if entry.Providers == nil {
		entry.Providers = map[string]registry.ProviderBinding{}
	}
	entry.Providers[providerName] = registry.ProviderBinding{
		SessionPath: b.SessionPath,
		SessionID:   b.SessionID,
	}
	return reg.Register(entry)
}

// ensureCCBSessionID returns the project's stable ccb session id,
// minting one on first use.
func ensureCCBSessionID(projectDir string) (string, error) {
	idPath := filepath.Join(paths.ProjectStateDir(projectDir), "ccb-session-id")
	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	id := registry.NewSessionID()
	if err := os.MkdirAll(filepath.Dir(idPath), 0755); err != nil {
		return "", err
	}
	if err := atomicfile.WriteFile(idPath, []byte(id+"\n"), 0644); err != nil {
		return "", err
	}
	return id, nil
}
