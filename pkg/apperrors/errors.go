package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrTimeout          = errors.New("generation timed out")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrUnknownModel     = errors.New("unknown model")
	ErrCanceled         = errors.New("generation canceled")
)

// QuotaError is returned when a user's usage would exceed a tier limit.
// It carries the reason string built by the quota check so the caller can show
// the specific limit and current usage.
type QuotaError struct {
	UserID string
	Reason string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded for user %s: %s", e.UserID, e.Reason)
}

// Unwrap lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}
