package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccbridge/ccb/version"
)

// NewVersionCmd returns the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print ccb version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			fmt.Println(info.String())
			return nil
		},
	}
}
