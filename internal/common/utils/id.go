// Package utils provides small helpers shared across the router.
package utils

import (
	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

// GenerateRequestID returns a request ID used to correlate log lines
func GenerateRequestID() string {
	return "req-" + uuid.NewString()
}

// GenerateSortableSuffix returns a collision-resistant suffix for append-only keys
func GenerateSortableSuffix() string {
	return cuid.New()
}
