package automation

import (
	"fmt"
	"time"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/datastore/entities"
)

// eventIneligibility returns the skip reason for sending kind about ev at
// now, or "" when the event still warrants the notification. Only
// event_cancelled is sent for cancelled events.
func eventIneligibility(kind Kind, ev *entities.Event, now time.Time) string {
	if kind == KindEventCancelled {
		if !ev.IsCancelled() {
			return ReasonEventNotCancelled
		}
	} else {
		if ev.IsCancelled() {
			return ReasonEventCancelled
		}
		if !ev.IsPublished() {
			return ReasonEventNotPublished
		}
	}
	if ev.HasEnded(now) {
		return ReasonEventEnded
	}
	return ""
}

// digestIdentifier scopes a digest recipient to one ISO week so the ledger
// allows one digest per account per week.
func digestIdentifier(email string, now time.Time, loc *time.Location) string {
	year, week := now.In(loc).ISOWeek()
	return fmt.Sprintf("%s %d-W%02d", email, year, week)
}

// exportIdentifier scopes an export notice to the exported file.
func exportIdentifier(email, fileURL string) string {
	return email + " " + fileURL
}
