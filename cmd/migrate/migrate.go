package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore"
)

// Command creates or updates the automation tables.
func Command(settings *conf.Settings) *cobra.Command {
	var includeDomain bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		Long: "Create or update the dispatch ledger, audit log, state, rate limit and queue tables. " +
			"With --domain the event, attendee and account tables are created too, for local development.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), settings, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := datastore.Migrate(cmd.Context(), a.DB, includeDomain); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", settings.Database.Type)
			return err
		},
	}

	cmd.Flags().BoolVar(&includeDomain, "domain", false, "Also create event, attendee and account tables")
	return cmd
}
