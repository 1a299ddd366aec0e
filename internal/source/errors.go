package source

import (
	"context"
	"errors"
	"fmt"

	"smartcart-engine/internal/domain"
)

// StatusError reports a non-success HTTP status from a source.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ParseError reports an unparseable source payload. Individual malformed
// entries inside an otherwise valid payload are skipped, not reported.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ClassifyError collapses a source call error into a failure reason.
func ClassifyError(err error) domain.FailureReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, context.Canceled):
		return domain.FailureCancelled
	case isStatusError(err):
		return domain.FailureStatus
	case isParseError(err):
		return domain.FailureParse
	default:
		return domain.FailureNetwork
	}
}

func isStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

func isParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
