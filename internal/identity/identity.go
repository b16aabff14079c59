// Package identity mints stable identifiers for stored records.
package identity

import "github.com/google/uuid"

// NewID returns a new random v4 UUID string, used for Attendance,
// RssiStream, and Anomaly primary keys.
func NewID() string {
	return uuid.New().String()
}
