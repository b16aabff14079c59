package ingestion

import "errors"

// ErrBadRequest is returned when a required field is missing or a sample
// is missing rssi/timestamp.
var ErrBadRequest = errors.New("ingestion: missing or malformed field")
