package event

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/cmd/output"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

// Command groups event operations.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Event operations",
	}
	cmd.AddCommand(notifyCancelledCommand(settings))
	return cmd
}

// CancelledResult is printed by notify-cancelled.
type CancelledResult struct {
	EventID uint `json:"event_id" yaml:"event_id"`
	Queued  int  `json:"queued" yaml:"queued"`
}

func notifyCancelledCommand(settings *conf.Settings) *cobra.Command {
	var (
		eventID uint
		format  string
	)

	cmd := &cobra.Command{
		Use:   "notify-cancelled",
		Short: "Queue cancellation notices for a cancelled event now",
		Long: "Queue the cancellation notice for every confirmed attendee of an event that was " +
			"already cancelled, without waiting for the next scan. Attendees already notified are skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(format); err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), settings, app.Options{Queue: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			d, err := automation.NewDispatcher(a.Deps())
			if err != nil {
				return err
			}
			queued, err := d.QueueEventCancelled(cmd.Context(), eventID)
			if err != nil {
				return err
			}

			result := CancelledResult{EventID: eventID, Queued: queued}
			return output.Write(cmd.OutOrStdout(), format, result, func(w io.Writer) {
				fmt.Fprintf(w, "event\t%d\n", result.EventID)
				fmt.Fprintf(w, "queued\t%d\n", result.Queued)
			})
		},
	}

	cmd.Flags().UintVar(&eventID, "event", 0, "Event id")
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}
