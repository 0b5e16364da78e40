package ai

import "errors"

// ErrUnavailable marks transport or configuration failures of an external
// model service. Callers map it to their own degraded-service error.
var ErrUnavailable = errors.New("ai service unavailable")
