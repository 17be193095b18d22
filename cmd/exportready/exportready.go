package exportready

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

// Command queues an export-ready notice for a user.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		userID  uint
		format  string
		fileURL string
	)

	cmd := &cobra.Command{
		Use:   "export-ready",
		Short: "Queue an export-ready notice",
		Long:  "Record and queue a notice that a CSV or ICS export is ready for download. Limited per user.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), settings, app.Options{Queue: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			d, err := automation.NewDispatcher(a.Deps())
			if err != nil {
				return err
			}
			id, err := d.QueueExportReady(cmd.Context(), userID, format, fileURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if id == 0 {
				_, err = fmt.Fprintln(out, "already sent, nothing queued")
				return err
			}
			_, err = fmt.Fprintf(out, "queued dispatch %d\n", id)
			return err
		},
	}

	cmd.Flags().UintVar(&userID, "user", 0, "Account id of the recipient")
	cmd.Flags().StringVar(&format, "format", automation.ExportCSV, "Export format: csv or ics")
	cmd.Flags().StringVar(&fileURL, "url", "", "Absolute download URL of the export")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
