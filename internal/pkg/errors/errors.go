package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	ErrInvalidQuery          = errors.New("invalid query")
	ErrInvalidRating         = errors.New("rating out of range")
	ErrUnknownQuery          = errors.New("unknown query")
	ErrEmbeddingUnavailable  = errors.New("embedding service unavailable")
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrIndexNotReady     = errors.New("vector index not ready")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
