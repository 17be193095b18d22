package automation

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/mailer"
)

// Date formats used in messages.
const (
	dateLayout = "Monday 2 January 2006"
	timeLayout = "3:04 PM"
)

// Paths on the public site.
const (
	pathEvents       = "events"
	pathVendorEvents = "vendor/events"
	pathMyTickets    = "my-tickets"
	pathVendorHome   = "vendor/dashboard"
	pathPreferences  = "account/preferences"
)

// params builds the template context for a job. site_name and site_url
// come from the mailer defaults.
func (w *Worker) params(job Job, r *resolved) (map[string]any, error) {
	p := map[string]any{"recipient_name": recipientName(r)}

	switch j := job.(type) {
	case SalesOpenJob:
		w.eventParams(p, r.event)
		p["manage_link"] = w.link(pathVendorEvents, strconv.FormatUint(uint64(r.event.ID), 10))
	case ReminderJob:
		w.eventParams(p, r.event)
		p["reminder_window"] = reminderWindow(j.Kind)
		p["manage_link"] = w.link(pathMyTickets)
	case WaitlistInviteJob:
		w.eventParams(p, r.event)
		p["manage_link"] = w.link(pathMyTickets)
	case EventCancelledJob:
		w.eventParams(p, r.event)
		p["cancel_reason"] = r.event.CancelReason
		p["manage_link"] = w.link(pathMyTickets)
	case ExportReadyJob:
		p["export_format"] = strings.ToUpper(j.ExportType)
		p["file_url"] = j.FileURL
		p["manage_link"] = w.link(pathVendorHome)
	case WeeklyDigestJob:
		p["digest_items"] = w.digestItems(r.digest)
		p["manage_link"] = w.link(pathPreferences)
	default:
		return nil, errors.Newf("unknown job variant %T", job).
			Component("automation").
			Category(errors.CategoryValidation).
			Build()
	}
	return p, nil
}

func (w *Worker) eventParams(p map[string]any, ev *entities.Event) {
	local := ev.StartsAt.In(w.deps.Settings.Location())
	p["event_title"] = ev.Title
	p["event_date"] = local.Format(dateLayout)
	p["event_time"] = local.Format(timeLayout)
	p["venue"] = ev.Venue
	p["event_link"] = w.eventLink(ev)
}

func (w *Worker) digestItems(events []entities.Event) []mailer.DigestItem {
	loc := w.deps.Settings.Location()
	items := make([]mailer.DigestItem, 0, len(events))
	for i := range events {
		ev := &events[i]
		item := mailer.DigestItem{
			Title: ev.Title,
			Date:  ev.StartsAt.In(loc).Format(dateLayout + ", " + timeLayout),
			Venue: ev.Venue,
			Link:  w.eventLink(ev),
		}
		if ev.Category != nil {
			item.Category = ev.Category.Name
		}
		items = append(items, item)
	}
	return items
}

func (w *Worker) eventLink(ev *entities.Event) string {
	ref := ev.Slug
	if ref == "" {
		ref = strconv.FormatUint(uint64(ev.ID), 10)
	}
	return w.link(pathEvents, ref)
}

// link joins path elements onto the site URL. An unparsable site URL
// yields a relative link rather than an error.
func (w *Worker) link(elems ...string) string {
	base := strings.TrimSpace(w.deps.Settings.SiteURL)
	joined, err := url.JoinPath(base, elems...)
	if err != nil || base == "" {
		return "/" + strings.Join(elems, "/")
	}
	return joined
}

func recipientName(r *resolved) string {
	if name := strings.TrimSpace(r.name); name != "" {
		return name
	}
	return "there"
}

func reminderWindow(kind Kind) string {
	if kind == KindReminder2h {
		return "2 hours"
	}
	return "24 hours"
}
