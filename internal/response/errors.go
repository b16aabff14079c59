package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	ErrBadRequest          ErrCode = "BAD_REQUEST"
	ErrUnauthorized        ErrCode = "UNAUTHORIZED"
	ErrDeviceMismatch      ErrCode = "DEVICE_MISMATCH"
	ErrNotFound            ErrCode = "NOT_FOUND"
	ErrInvalidState        ErrCode = "INVALID_STATE"
	ErrIdempotencyConflict ErrCode = "IDEMPOTENCY_CONFLICT"
	ErrInternal            ErrCode = "INTERNAL"

	// ─── Rate limiting ──────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrBadRequest:
		return "The request is missing a required field or is malformed."
	case ErrUnauthorized:
		return "The device signature could not be verified."
	case ErrDeviceMismatch:
		return "This student account is bound to a different device."
	case ErrNotFound:
		return "No matching record was found."
	case ErrInvalidState:
		return "The requested transition is not valid from the record's current state."
	case ErrIdempotencyConflict:
		return "This event id was already used with a different request payload."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal error occurred."
	default:
		return "An unexpected error occurred."
	}
}
