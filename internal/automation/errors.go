package automation

import "github.com/anna-pye/myeventlane-v2-sub001/internal/errors"

var (
	// ErrNotImplemented is returned by scans that have no discovery query.
	ErrNotImplemented = sentinel("scan not implemented", errors.CategoryNotImplemented)

	// ErrOnDemandOnly is returned when scanning a kind that is only ever
	// created by an explicit request.
	ErrOnDemandOnly = sentinel("kind is created on demand and is not scanned", errors.CategoryValidation)

	// ErrRateLimited is returned when an on-demand request exceeds its limit.
	ErrRateLimited = sentinel("rate limit exceeded", errors.CategoryLimit)

	// ErrLedgerUnavailable is returned to the queue for OutcomeRetry so the
	// message is redelivered.
	ErrLedgerUnavailable = sentinel("dispatch ledger unavailable", errors.CategoryDatabase)
)

func sentinel(msg string, category errors.ErrorCategory) error {
	return errors.New(errors.NewStd(msg)).
		Component("automation").
		Category(category).
		Build()
}

// Ledger reasons written by the worker.
const (
	ReasonEventNotFound     = "Event not found"
	ReasonAttendeeNotFound  = "Attendee not found"
	ReasonUserNotFound      = "User not found"
	ReasonAlreadySent       = "Already sent"
	ReasonEventCancelled    = "Event is cancelled"
	ReasonEventEnded        = "Event has ended"
	ReasonEventNotPublished = "Event is not published"
	ReasonEventNotCancelled = "Event is no longer cancelled"
	ReasonNotConfirmed      = "Attendee is no longer confirmed"
	ReasonNotWaitlistPromo  = "Attendee was not promoted from the waitlist"
	ReasonUserInactive      = "User is inactive"
	ReasonNotOwner          = "User no longer owns the event"
	ReasonDigestOptOut      = "User opted out of the digest"
	ReasonDigestEmpty       = "No upcoming events in followed categories"
	ReasonKindMismatch      = "Job does not match dispatch record"
)

// verdictError is a terminal decision reached while resolving a job:
// CategoryNotFound fails the dispatch, CategoryIneligible skips it. The
// message is the ledger reason.
type verdictError struct {
	reason   string
	category errors.ErrorCategory
	cause    error
}

func (e *verdictError) Error() string { return e.reason }

func (e *verdictError) Unwrap() error { return e.cause }

// ErrorCategory implements errors.CategorizedError.
func (e *verdictError) ErrorCategory() errors.ErrorCategory { return e.category }

func notFound(reason string, cause error) error {
	return &verdictError{reason: reason, category: errors.CategoryNotFound, cause: cause}
}

func ineligible(reason string) error {
	return &verdictError{reason: reason, category: errors.CategoryIneligible}
}
