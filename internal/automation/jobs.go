package automation

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
)

// Job is the payload of one queued dispatch. The marker method keeps the
// set of variants closed to this package.
type Job interface {
	JobKind() Kind
	Dispatch() uint
	isJob()
}

// SalesOpenJob tells a vendor that ticket sales for their event opened.
type SalesOpenJob struct {
	DispatchID uint
	EventID    uint
	UserID     uint
}

// ReminderJob reminds a confirmed attendee of an upcoming event.
type ReminderJob struct {
	Kind           Kind // KindReminder24h or KindReminder2h
	DispatchID     uint
	EventID        uint
	AttendeeID     uint
	RecipientEmail string
}

// WaitlistInviteJob tells a promoted attendee that a spot opened up.
type WaitlistInviteJob struct {
	DispatchID     uint
	EventID        uint
	AttendeeID     uint
	RecipientEmail string
}

// EventCancelledJob tells an attendee that the event was cancelled.
type EventCancelledJob struct {
	DispatchID     uint
	EventID        uint
	AttendeeID     uint
	RecipientEmail string
}

// ExportReadyJob tells a user that a requested export can be downloaded.
type ExportReadyJob struct {
	Kind       Kind // KindExportReadyCSV or KindExportReadyICS
	DispatchID uint
	UserID     uint
	ExportType string
	FileURL    string
}

// WeeklyDigestJob sends the weekly category digest to one account.
type WeeklyDigestJob struct {
	DispatchID uint
	UserID     uint
}

func (j SalesOpenJob) JobKind() Kind      { return KindSalesOpen }
func (j ReminderJob) JobKind() Kind       { return j.Kind }
func (j WaitlistInviteJob) JobKind() Kind { return KindWaitlistInvite }
func (j EventCancelledJob) JobKind() Kind { return KindEventCancelled }
func (j ExportReadyJob) JobKind() Kind    { return j.Kind }
func (j WeeklyDigestJob) JobKind() Kind   { return KindWeeklyDigest }

func (j SalesOpenJob) Dispatch() uint      { return j.DispatchID }
func (j ReminderJob) Dispatch() uint       { return j.DispatchID }
func (j WaitlistInviteJob) Dispatch() uint { return j.DispatchID }
func (j EventCancelledJob) Dispatch() uint { return j.DispatchID }
func (j ExportReadyJob) Dispatch() uint    { return j.DispatchID }
func (j WeeklyDigestJob) Dispatch() uint   { return j.DispatchID }

func (SalesOpenJob) isJob()      {}
func (ReminderJob) isJob()       {}
func (WaitlistInviteJob) isJob() {}
func (EventCancelledJob) isJob() {}
func (ExportReadyJob) isJob()    {}
func (WeeklyDigestJob) isJob()   {}

// ErrMissingData is wrapped by every decode failure.
var ErrMissingData = errors.NewStd("job payload is missing required data")

// wireJob is the queue representation of every variant.
type wireJob struct {
	Type           Kind   `json:"type"`
	DispatchID     uint   `json:"dispatch_id"`
	EventID        uint   `json:"event_id,omitempty"`
	AttendeeID     uint   `json:"attendee_id,omitempty"`
	UserID         uint   `json:"user_id,omitempty"`
	RecipientEmail string `json:"recipient_email,omitempty"`
	ExportType     string `json:"export_type,omitempty"`
	FileURL        string `json:"file_url,omitempty"`
}

// EncodeJob serializes a job for the queue.
func EncodeJob(job Job) ([]byte, error) {
	w := wireJob{Type: job.JobKind(), DispatchID: job.Dispatch()}
	switch j := job.(type) {
	case SalesOpenJob:
		w.EventID, w.UserID = j.EventID, j.UserID
	case ReminderJob:
		w.EventID, w.AttendeeID, w.RecipientEmail = j.EventID, j.AttendeeID, j.RecipientEmail
	case WaitlistInviteJob:
		w.EventID, w.AttendeeID, w.RecipientEmail = j.EventID, j.AttendeeID, j.RecipientEmail
	case EventCancelledJob:
		w.EventID, w.AttendeeID, w.RecipientEmail = j.EventID, j.AttendeeID, j.RecipientEmail
	case ExportReadyJob:
		w.UserID, w.ExportType, w.FileURL = j.UserID, j.ExportType, j.FileURL
	case WeeklyDigestJob:
		w.UserID = j.UserID
	default:
		return nil, errors.Newf("unknown job variant %T", job).
			Component("automation").
			Category(errors.CategoryValidation).
			Build()
	}
	return json.Marshal(w)
}

// DecodeJob parses a queued payload. Identifiers may be JSON numbers or
// numeric strings; every key the variant needs must be present.
func DecodeJob(body []byte) (Job, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, missingData("payload", err)
	}

	typ, err := obj.GetString("type")
	if err != nil {
		return nil, missingData("type", err)
	}
	kind, err := ParseKind(typ)
	if err != nil {
		return nil, missingData("type", err)
	}

	d := decoder{obj: obj}
	dispatchID := d.id("dispatch_id")

	var job Job
	switch kind {
	case KindSalesOpen:
		job = SalesOpenJob{DispatchID: dispatchID, EventID: d.id("event_id"), UserID: d.id("user_id")}
	case KindReminder24h, KindReminder2h:
		job = ReminderJob{Kind: kind, DispatchID: dispatchID, EventID: d.id("event_id"), AttendeeID: d.id("attendee_id"), RecipientEmail: d.text("recipient_email")}
	case KindWaitlistInvite:
		job = WaitlistInviteJob{DispatchID: dispatchID, EventID: d.id("event_id"), AttendeeID: d.id("attendee_id"), RecipientEmail: d.text("recipient_email")}
	case KindEventCancelled:
		job = EventCancelledJob{DispatchID: dispatchID, EventID: d.id("event_id"), AttendeeID: d.id("attendee_id"), RecipientEmail: d.text("recipient_email")}
	case KindExportReadyCSV, KindExportReadyICS:
		job = ExportReadyJob{Kind: kind, DispatchID: dispatchID, UserID: d.id("user_id"), ExportType: d.text("export_type"), FileURL: d.text("file_url")}
	case KindWeeklyDigest:
		job = WeeklyDigestJob{DispatchID: dispatchID, UserID: d.id("user_id")}
	}
	if d.err != nil {
		return nil, d.err
	}
	return job, nil
}

// decoder keeps the first missing field.
type decoder struct {
	obj *jason.Object
	err error
}

func (d *decoder) id(key string) uint {
	if d.err != nil {
		return 0
	}
	if n, err := d.obj.GetInt64(key); err == nil {
		if n <= 0 {
			d.err = missingData(key, errors.Newf("%s must be positive, got %d", key, n).Build())
			return 0
		}
		return uint(n)
	}
	s, err := d.obj.GetString(key)
	if err != nil {
		d.err = missingData(key, err)
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		d.err = missingData(key, errors.Newf("%s is not a positive integer: %q", key, s).Build())
		return 0
	}
	return uint(n)
}

func (d *decoder) text(key string) string {
	if d.err != nil {
		return ""
	}
	s, err := d.obj.GetString(key)
	if err != nil || strings.TrimSpace(s) == "" {
		if err == nil {
			err = errors.Newf("%s is empty", key).Build()
		}
		d.err = missingData(key, err)
		return ""
	}
	return strings.TrimSpace(s)
}

func missingData(field string, cause error) error {
	return errors.New(errors.Join(ErrMissingData, cause)).
		Component("automation").
		Category(errors.CategoryMissingData).
		Context("field", field).
		Build()
}
