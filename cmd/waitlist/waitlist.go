package waitlist

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/cmd/output"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

// Command groups waitlist operations.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waitlist",
		Short: "Waitlist operations",
	}
	cmd.AddCommand(promoteCommand(settings))
	return cmd
}

func promoteCommand(settings *conf.Settings) *cobra.Command {
	var (
		eventID uint
		format  string
	)

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote waitlisted attendees into free seats and queue their invites",
		Args:  cobra.NoArgs,
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
			result, promoteErr := a.Waitlist(d).Promote(cmd.Context(), eventID)
			if result == nil {
				return promoteErr
			}

			err = output.Write(cmd.OutOrStdout(), format, result, func(w io.Writer) {
				fmt.Fprintf(w, "event\t%d\n", result.EventID)
				fmt.Fprintf(w, "promoted\t%d\n", len(result.Promoted))
				fmt.Fprintf(w, "invited\t%d\n", result.Invited)
			})
			if err != nil {
				return err
			}
			return promoteErr
		},
	}

	cmd.Flags().UintVar(&eventID, "event", 0, "Event id")
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}
