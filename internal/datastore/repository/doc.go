// Package repository provides read access to the ticketing tables owned by
// the host application (events, attendees, accounts, categories).
//
// The automation service only reads these tables, with one exception:
// waitlist promotion flips attendee status from waitlisted to confirmed
// inside a transaction.
//
// # Error Handling
//
// Lookups by id return sentinel errors (ErrEventNotFound, etc.) instead of
// leaking GORM errors, so callers can classify a missing entity without
// string matching.
//
// # Time Handling
//
// Window bounds are converted to UTC before querying. SQLite compares
// timestamps as text, so mixing zones would silently break range queries.
//
// # Thread Safety
//
// All repository methods are safe for concurrent use.
package repository
