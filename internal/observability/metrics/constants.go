// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Label values shared by several metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)

// ShutdownTimeout bounds the graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
