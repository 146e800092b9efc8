package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccbridge/ccb/cli"
	"github.com/ccbridge/ccb/internal/daemon/state"
	"github.com/ccbridge/ccb/pkg/binding"
	"github.com/ccbridge/ccb/pkg/paths"
	"github.com/ccbridge/ccb/pkg/project"
	"github.com/ccbridge/ccb/pkg/provider"
	"github.com/ccbridge/ccb/pkg/registry"
)

type statusReport struct {
	ProjectDir string                      `json:"project_dir"`
	ProjectKey string                      `json:"project_key"`
	KeyNote    string                      `json:"key_note,omitempty"`
	Bindings   map[string]*binding.Binding `json:"bindings,omitempty"`
	Daemons    []*state.DaemonState        `json:"daemons,omitempty"`
	Registry   []*registry.Entry           `json:"registry,omitempty"`
}

// NewStatusCmd returns the status command: everything ccb knows about
// the current project, tolerant of any piece being absent.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show project identity, bindings, daemons, and registry entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			handler := cli.NewErrorHandler(opts.Verbose)

			wd, err := paths.WorkDir()
			if err != nil {
				return handler.Handle(err)
			}
			key := project.Identity(wd)

			report := statusReport{
				ProjectDir: wd,
				ProjectKey: key,
				Bindings:   map[string]*binding.Binding{},
			}
			if _, err := project.NormalizeChecked(wd); err != nil {
				report.KeyNote = err.Error()
			}

			for _, name := range provider.Names() {
				if b, err := binding.Resolve(wd, name); err == nil {
					report.Bindings[name] = b
				}
			}

			for _, st := range state.ListStates(paths.RunDir()) {
				if st.WorkDir == wd && st.IsLive() {
					report.Daemons = append(report.Daemons, st)
				}
			}

			if entries, err := registry.New("").List(); err == nil {
				for _, e := range entries {
					if e.CCBProjectID == key {
						report.Registry = append(report.Registry, e)
					}
				}
			}

			if opts.JSONOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return handler.Handle(err)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Project: %s\n", report.ProjectDir)
			fmt.Printf("Key:     %s\n", report.ProjectKey)
			if report.KeyNote != "" {
				fmt.Printf("  note: %s\n", report.KeyNote)
			}
			if len(report.Bindings) == 0 {
				fmt.Println("Bindings: none")
			} else {
				fmt.Println("Bindings:")
				for name, b := range report.Bindings {
					fmt.Printf("  %-8s %s (%s)\n", name, b.SessionID, b.SessionPath)
				}
			}
			if len(report.Daemons) == 0 {
				fmt.Println("Daemons: none running")
			} else {
				fmt.Println("Daemons:")
				for _, st := range report.Daemons {
					fmt.Printf("  %-8s pid %d, queue %d\n", st.Provider, st.PID, st.QueueDepth)
				}
			}
			if len(report.Registry) > 0 {
				fmt.Println("Registry:")
				for _, e := range report.Registry {
					fmt.Printf("  %s (%d providers)\n", e.CCBSessionID, len(e.Providers))
				}
			}
			return nil
		},
	}
}
