package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAdapterUnavailable marks a provider outage or per-adapter timeout.
	// Recorded as a failure evidence record, never fatal to the job.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	// ErrInvalidEvidence marks a malformed provider response. Treated the
	// same as an unavailable adapter but logged with detail.
	ErrInvalidEvidence = errors.New("invalid evidence shape")
	// ErrOverrideConflict marks a second override attempt on a fusion
	// result that already carries one.
	ErrOverrideConflict = errors.New("override conflict")
	// ErrRetryExhausted marks a job whose queue attempts are spent.
	ErrRetryExhausted = errors.New("retry exhausted")
	// ErrConfiguration marks a missing or unusable configuration value.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a failure worth retrying.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a job-level error should be retried by the
// queue. Configuration and conflict errors are permanent.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrOverrideConflict),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
