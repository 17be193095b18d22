package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/buildinfo"
)

// Command prints build information.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current().String())
			return err
		},
	}
}
