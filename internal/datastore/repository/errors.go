package repository

import "github.com/anna-pye/myeventlane-v2-sub001/internal/errors"

// Sentinel errors for repository operations.
var (
	// ErrEventNotFound indicates the requested event does not exist.
	ErrEventNotFound = errors.NewStd("event not found")

	// ErrAttendeeNotFound indicates the requested attendee does not exist.
	ErrAttendeeNotFound = errors.NewStd("attendee not found")

	// ErrAccountNotFound indicates the requested account does not exist.
	ErrAccountNotFound = errors.NewStd("account not found")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.NewStd("invalid input")
)
