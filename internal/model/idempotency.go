package model

import "time"

// IdempotencyScope namespaces idempotency keys by operation so the same
// event_id can be reused safely across unrelated endpoints.
type IdempotencyScope string

const (
	ScopeCheckIn           IdempotencyScope = "checkin"
	ScopeConfirm           IdempotencyScope = "confirm"
	ScopeCancelProvisional IdempotencyScope = "cancel_provisional"
)

// IdempotencyKey records the first response produced for an (event_id,
// scope) pair, keyed so a byte-identical retry returns the stored
// response and a payload mismatch is rejected.
type IdempotencyKey struct {
	EventID        string           `json:"eventId"`
	Scope          IdempotencyScope `json:"scope"`
	RequestHash    string           `json:"requestHash"`
	StoredResponse []byte           `json:"storedResponse"`
	StatusCode     int              `json:"statusCode"`
	CreatedAt      time.Time        `json:"createdAt"`
}
