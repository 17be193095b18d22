package ratelimit

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/cmd/output"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

// Command groups rate limiter operations.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Rate limiter operations",
	}
	cmd.AddCommand(checkCommand(settings))
	return cmd
}

func checkCommand(settings *conf.Settings) *cobra.Command {
	var (
		identifier string
		limit      int
		period     time.Duration
		format     string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Count one hit against an identifier and print the decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(format); err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), settings, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.Limiter.CheckLimit(cmd.Context(), identifier, limit, period)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), format, result, func(w io.Writer) {
				fmt.Fprintf(w, "allowed\t%t\n", result.Allowed)
				fmt.Fprintf(w, "remaining\t%d\n", result.Remaining)
				fmt.Fprintf(w, "reset at\t%s\n", result.ResetAt.Format(time.RFC3339))
			})
		},
	}

	cmd.Flags().StringVar(&identifier, "id", "", "Identifier to count against, for example export_ready:42")
	cmd.Flags().IntVar(&limit, "limit", 10, "Hits allowed per period")
	cmd.Flags().DurationVar(&period, "period", time.Hour, "Window length")
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
