// Package entities defines the GORM models shared by the stores.
//
// # Automation tables (owned by this service)
//
//   - DispatchRecord: idempotency ledger of notification attempts
//   - AuditLogEntry: append-only trace of dispatch activity
//   - StateEntry: named values such as the weekly digest watermark
//   - RateLimitWindow: fixed-window counters
//   - QueueItem: jobs for the database queue backend
//
// # Domain tables (owned by the ticketing application, read here)
//
//   - Event, Attendee, Account, Category, CategorySubscription
package entities
