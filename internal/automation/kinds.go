// Package automation discovers due notifications, records them in the
// dispatch ledger, queues one job per recipient and delivers those jobs
// exactly once per event, notification kind and recipient.
package automation

import (
	"strings"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/mailer"
)

// Kind is a notification kind. The set is closed.
type Kind string

// Notification kinds.
const (
	KindSalesOpen      Kind = "sales_open"
	KindReminder24h    Kind = "reminder_24h"
	KindReminder2h     Kind = "reminder_2h"
	KindWaitlistInvite Kind = "waitlist_invite"
	KindEventCancelled Kind = "event_cancelled"
	KindExportReadyCSV Kind = "export_ready_csv"
	KindExportReadyICS Kind = "export_ready_ics"
	KindWeeklyDigest   Kind = "weekly_category_digest"
)

// Trigger describes how dispatches of a kind are created.
type Trigger int

const (
	// TriggerScan kinds are discovered by the periodic scanner.
	TriggerScan Trigger = iota
	// TriggerEvent kinds are created when something happens, such as a
	// waitlist promotion.
	TriggerEvent
	// TriggerOnDemand kinds are created by an explicit request.
	TriggerOnDemand
)

// KindInfo is the registry entry of a kind.
type KindInfo struct {
	Kind     Kind
	Queue    string
	Template string
	Label    string
	Trigger  Trigger
}

// registry is ordered the way ScanAll walks it.
var registry = []KindInfo{
	{KindSalesOpen, "automation_sales_open", mailer.TemplateSalesOpen, "Ticket sales open", TriggerScan},
	{KindReminder24h, "automation_reminder_24h", mailer.TemplateEventReminder, "Event reminder (24 hours)", TriggerScan},
	{KindReminder2h, "automation_reminder_2h", mailer.TemplateEventReminder, "Event reminder (2 hours)", TriggerScan},
	{KindEventCancelled, "automation_event_cancelled", mailer.TemplateEventCancelled, "Event cancelled", TriggerScan},
	{KindWeeklyDigest, "automation_weekly_category_digest", mailer.TemplateWeeklyDigest, "Weekly category digest", TriggerScan},
	{KindWaitlistInvite, "waitlist_invite", mailer.TemplateWaitlistInvite, "Waitlist invite", TriggerEvent},
	{KindExportReadyCSV, "automation_export_ready_csv", mailer.TemplateExportReady, "Export ready (CSV)", TriggerOnDemand},
	{KindExportReadyICS, "automation_export_ready_ics", mailer.TemplateExportReady, "Export ready (ICS)", TriggerOnDemand},
}

var byKind = func() map[Kind]KindInfo {
	m := make(map[Kind]KindInfo, len(registry))
	for _, info := range registry {
		m[info.Kind] = info
	}
	return m
}()

// ErrUnknownKind is returned by ParseKind for strings outside the set.
var ErrUnknownKind = errors.NewStd("unknown notification kind")

// Kinds returns every kind in registry order.
func Kinds() []Kind {
	out := make([]Kind, len(registry))
	for i, info := range registry {
		out[i] = info.Kind
	}
	return out
}

// ParseKind converts s to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := byKind[k]; !ok {
		return "", errors.New(ErrUnknownKind).
			Component("automation").
			Category(errors.CategoryValidation).
			Context("kind", s).
			Build()
	}
	return k, nil
}

// Valid reports whether k is in the set.
func (k Kind) Valid() bool {
	_, ok := byKind[k]
	return ok
}

// Info returns the registry entry. It panics for kinds outside the set,
// which cannot be built without ParseKind or the constants.
func (k Kind) Info() KindInfo {
	info, ok := byKind[k]
	if !ok {
		panic("automation: unregistered kind " + string(k))
	}
	return info
}

// Queue returns the queue jobs of this kind travel on.
func (k Kind) Queue() string { return k.Info().Queue }

// Template returns the mail template key.
func (k Kind) Template() string { return k.Info().Template }

// Label returns a human readable name.
func (k Kind) Label() string { return k.Info().Label }

func (k Kind) String() string { return string(k) }

// QueueNames returns the distinct queue names in registry order.
func QueueNames() []string {
	out := make([]string, 0, len(registry))
	for _, info := range registry {
		out = append(out, info.Queue)
	}
	return out
}
