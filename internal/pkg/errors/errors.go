package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrTooMany  = errors.New("too many requests")
	ErrInternal = errors.New("internal")

	// Embedding provider failure taxonomy. The pipeline picks its retry
	// policy off these, so providers must classify every failure into one.
	ErrRateLimited     = errors.New("embedding rate limited")
	ErrTransient       = errors.New("embedding transient failure")
	ErrContextTooLong  = errors.New("embedding context too long")
	ErrPermanentReject = errors.New("embedding permanently rejected")

	// ErrDimensionMismatch rejects embedding writes whose length does not
	// match the process-wide configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable reports whether an embedding failure should be retried with
// backoff rather than marked failed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
