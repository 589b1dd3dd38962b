// Package errors provides the error taxonomy shared by the catalog, batch and assistant layers.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("product not found")
var ErrRemoteUnavailable = errors.New("remote catalog unavailable")
var ErrRetriesExhausted = errors.New("rate limit retries exhausted")
var ErrSchema = errors.New("invalid batch file schema")
var ErrPartialBatchFailure = errors.New("some batch rows failed")

var ErrMailDelivery = errors.New("failed to deliver email")
var ErrModelCall = errors.New("inference call failed")
var ErrSchedule = errors.New("failed to schedule job")

var ErrRecordSnapshot = errors.New("failed to record snapshot")
var ErrFindSnapshots = errors.New("failed to find snapshots")
var ErrMarkReverted = errors.New("failed to mark snapshots reverted")
var ErrListBatches = errors.New("failed to list batches")

var ErrRecordTurn = errors.New("failed to record conversation turn")
var ErrListTurns = errors.New("failed to list conversation turns")

var ErrTransactionBegin = errors.New("failed to begin transaction")
var ErrTransactionCommit = errors.New("failed to commit transaction")
var ErrTransactionRollback = errors.New("failed to rollback transaction")

// RateLimitedError is returned when the catalog answers 429. RetryAfter is the server hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RemoteValidationError carries the messages of a 422 response.
type RemoteValidationError struct {
	Messages []string
}

func (e *RemoteValidationError) Error() string {
	return "remote validation failed: " + strings.Join(e.Messages, "; ")
}

// SchemaError reports a row source whose header cannot be processed.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return e.Reason
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// IsRateLimited reports whether err is, or wraps, a RateLimitedError.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
