package scan

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/cmd/output"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/automation"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

// Command runs one scanner sweep. It is meant to be run from cron.
func Command(settings *conf.Settings) *cobra.Command {
	var kind, format string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scanner sweep",
		Long: "Find due notifications, record them in the dispatch ledger and queue one job per recipient. " +
			"Exits non-zero when any kind failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(format); err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), settings, kind, format)
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "Scan a single notification kind")
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json or yaml")
	return cmd
}

func run(ctx context.Context, w io.Writer, settings *conf.Settings, kindName, format string) error {
	var kind automation.Kind
	if kindName != "" {
		k, err := automation.ParseKind(kindName)
		if err != nil {
			return err
		}
		kind = k
	}

	a, err := app.New(ctx, settings, app.Options{Queue: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	scanner, err := automation.NewScanner(a.Deps())
	if err != nil {
		return err
	}

	var reports []automation.ScanReport
	var scanErr error
	if kind != "" {
		report, err := scanner.Scan(ctx, kind)
		reports, scanErr = []automation.ScanReport{report}, err
	} else {
		reports, scanErr = scanner.ScanAll(ctx)
	}

	if err := output.Write(w, format, reports, func(tw io.Writer) { writeTable(tw, reports) }); err != nil {
		return err
	}
	return scanErr
}

func writeTable(w io.Writer, reports []automation.ScanReport) {
	fmt.Fprintln(w, "KIND\tCANDIDATES\tENQUEUED\tALREADY SENT\tINELIGIBLE\tGATED\tDURATION\tERROR")
	for _, r := range reports {
		errText := "-"
		switch {
		case r.NotImplemented:
			errText = "not implemented"
		case r.Err != nil:
			errText = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%t\t%s\t%s\n",
			r.Kind, r.Candidates, r.Enqueued, r.AlreadySent, r.Ineligible, r.Gated, r.Duration.Round(time.Millisecond), errText)
	}
}
