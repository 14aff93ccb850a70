package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExhausted is returned once the Data API quota for the run is spent.
	ErrQuotaExhausted = errors.New("youtube api quota exhausted")

	// ErrSourceUnavailable marks a channel or playlist the API refuses to list
	// (closed, suspended, private). Discovery skips such sources.
	ErrSourceUnavailable = errors.New("source not accessible")

	// ErrBlocked marks a transcript request refused because of the network path.
	ErrBlocked = errors.New("transcript requests are blocked")

	ErrRunLocked          = errors.New("another run holds the state lock")
	ErrInvalidMode        = errors.New("invalid run mode")
	ErrMissingCredentials = errors.New("youtube credentials missing")
)

// QuotaExhaustedError carries the candidates a listing call gathered before
// the quota ran out.
type QuotaExhaustedError struct {
	Op      string
	Partial []VideoCandidate
	Cause   error
}

func (e *QuotaExhaustedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, ErrQuotaExhausted, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, ErrQuotaExhausted)
}

func (e *QuotaExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

func (e *QuotaExhaustedError) Unwrap() error {
	return e.Cause
}

// partialFrom extracts partial results from a quota error, if any.
func partialFrom(err error) []VideoCandidate {
	var qe *QuotaExhaustedError
	if errors.As(err, &qe) {
		return qe.Partial
	}
	return nil
}
