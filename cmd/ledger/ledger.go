package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/anna-pye/myeventlane-v2-sub001/cmd/output"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/app"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/ledger"
)

// Record is the printed form of a dispatch record.
type Record struct {
	ID               uint       `json:"id" yaml:"id"`
	EventID          *uint      `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	NotificationType string     `json:"notification_type" yaml:"notification_type"`
	RecipientHash    string     `json:"recipient_hash" yaml:"recipient_hash"`
	Status           string     `json:"status" yaml:"status"`
	Attempts         int        `json:"attempts" yaml:"attempts"`
	LastError        string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	ScheduledFor     *time.Time `json:"scheduled_for,omitempty" yaml:"scheduled_for,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"updated_at"`
}

// AuditRecord is the printed form of an audit entry.
type AuditRecord struct {
	ID               uint           `json:"id" yaml:"id"`
	Action           string         `json:"action" yaml:"action"`
	NotificationType string         `json:"notification_type,omitempty" yaml:"notification_type,omitempty"`
	DispatchID       *uint          `json:"dispatch_id,omitempty" yaml:"dispatch_id,omitempty"`
	CorrelationID    string         `json:"correlation_id" yaml:"correlation_id"`
	Metadata         map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at" yaml:"created_at"`
}

// Command groups the ledger inspection commands.
func Command(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect dispatch records and the audit trail",
	}
	cmd.PersistentFlags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json or yaml")

	cmd.AddCommand(
		listCommand(settings, &format),
		statsCommand(settings, &format),
		auditCommand(settings, &format),
	)
	return cmd
}

func listCommand(settings *conf.Settings, format *string) *cobra.Command {
	var (
		eventID uint
		kind    string
		status  string
		since   time.Duration
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dispatch records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(*format); err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), settings, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			filter := ledger.Filter{NotificationType: kind, Status: status, Limit: limit}
			if cmd.Flags().Changed("event") {
				filter.EventID = &eventID
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			records, err := a.Ledger.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := make([]Record, len(records))
			for i := range records {
				out[i] = toRecord(&records[i])
			}
			return output.Write(cmd.OutOrStdout(), *format, out, func(w io.Writer) { writeRecords(w, out) })
		},
	}

	cmd.Flags().UintVar(&eventID, "event", 0, "Only records for this event")
	cmd.Flags().StringVar(&kind, "type", "", "Only records of this notification kind")
	cmd.Flags().StringVar(&status, "status", "", "Only records in this status: scheduled, sent, failed or skipped")
	cmd.Flags().DurationVar(&since, "since", 0, "Only records created within this duration")
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultListLimit, "Maximum number of records")
	return cmd
}

func statsCommand(settings *conf.Settings, format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count dispatch records by status and kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(*format); err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), settings, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := a.Ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), *format, stats, func(w io.Writer) { writeStats(w, stats) })
		},
	}
}

func auditCommand(settings *conf.Settings, format *string) *cobra.Command {
	var (
		eventID uint
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Validate(*format); err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), settings, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var event *uint
			if cmd.Flags().Changed("event") {
				event = &eventID
			}
			entries, err := a.Audit.List(cmd.Context(), event, limit)
			if err != nil {
				return err
			}

			out := make([]AuditRecord, len(entries))
			for i := range entries {
				out[i] = toAuditRecord(&entries[i])
			}
			return output.Write(cmd.OutOrStdout(), *format, out, func(w io.Writer) { writeAudit(w, out) })
		},
	}

	cmd.Flags().UintVar(&eventID, "event", 0, "Only entries for this event")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	return cmd
}

func toRecord(r *entities.DispatchRecord) Record {
	return Record{
		ID:               r.ID,
		EventID:          r.EventID,
		NotificationType: r.NotificationType,
		RecipientHash:    r.RecipientHash,
		Status:           r.Status,
		Attempts:         r.Attempts,
		LastError:        r.LastError,
		ScheduledFor:     r.ScheduledFor,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toAuditRecord(e *entities.AuditLogEntry) AuditRecord {
	rec := AuditRecord{
		ID:               e.ID,
		Action:           e.Action,
		NotificationType: e.NotificationType,
		DispatchID:       e.DispatchID,
		CorrelationID:    e.CorrelationID,
		CreatedAt:        e.CreatedAt,
	}
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &rec.Metadata)
	}
	return rec
}

func writeRecords(w io.Writer, records []Record) {
	fmt.Fprintln(w, "ID\tEVENT\tTYPE\tSTATUS\tATTEMPTS\tRECIPIENT\tUPDATED\tERROR")
	for _, r := range records {
		event := "-"
		if r.EventID != nil {
			event = fmt.Sprint(*r.EventID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, event, r.NotificationType, r.Status, r.Attempts,
			shortHash(r.RecipientHash), r.UpdatedAt.Format(time.RFC3339), r.LastError)
	}
}

func writeStats(w io.Writer, stats *ledger.Stats) {
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	for _, status := range []string{ledger.StatusScheduled, ledger.StatusSent, ledger.StatusFailed, ledger.StatusSkipped} {
		fmt.Fprintf(w, "%s\t%d\n", status, stats.ByStatus[status])
	}
	if stats.Oldest != nil {
		fmt.Fprintf(w, "oldest\t%s\n", stats.Oldest.Format(time.RFC3339))
	}

	kinds := make([]string, 0, len(stats.ByType))
	for kind := range stats.ByType {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		byStatus := stats.ByType[kind]
		fmt.Fprintf(w, "%s\tsent=%d failed=%d skipped=%d scheduled=%d\n", kind,
			byStatus[ledger.StatusSent], byStatus[ledger.StatusFailed],
			byStatus[ledger.StatusSkipped], byStatus[ledger.StatusScheduled])
	}
}

func writeAudit(w io.Writer, entries []AuditRecord) {
	fmt.Fprintln(w, "ID\tACTION\tTYPE\tDISPATCH\tCORRELATION\tCREATED")
	for _, e := range entries {
		dispatch := "-"
		if e.DispatchID != nil {
			dispatch = fmt.Sprint(*e.DispatchID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Action, e.NotificationType, dispatch, e.CorrelationID, e.CreatedAt.Format(time.RFC3339))
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
