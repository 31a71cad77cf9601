package main

import (
	"context"
	"errors"
	"strings"
)

// Failure categories surfaced by the stores and the credential service.
// Validation, conflict, and unauthorized failures are recovered at the HTTP
// boundary and shown to the user; everything else is logged and rendered as
// a generic error so schema details never leak.
var (
	errConflict     = errors.New("already exists")
	errUnauthorized = errors.New("wrong login details")
	errNotFound     = errors.New("not found")
	errUnavailable  = errors.New("storage unavailable")
	errAborted      = errors.New("storage write aborted")
)

// validationFailure carries the user-visible messages collected while
// checking form input. It is an explicit return value, never ambient
// request state.
type validationFailure struct {
	msgs []string
}

func (v *validationFailure) Error() string {
	if v == nil || len(v.msgs) == 0 {
		return "invalid input"
	}
	return strings.Join(v.msgs, " ")
}

func newValidationFailure(msgs ...string) *validationFailure {
	return &validationFailure{msgs: msgs}
}

// mapStorageErr translates a database error into the taxonomy. Timeouts on
// read paths are retryable (errUnavailable); timeouts on write paths lacking
// an idempotency key abort (errAborted).
func mapStorageErr(err error, write bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if write {
			return errAborted
		}
		return errUnavailable
	}
	if isUniqueViolation(err) {
		return errConflict
	}
	return err
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. modernc.org/sqlite does not export a typed error for this, so
// the message is matched the same way duplicate-column probes are.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// userMessage returns the flash-safe message for a recoverable failure.
// ok is false for internal/storage errors that must not reach the user.
func userMessage(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var vf *validationFailure
	if errors.As(err, &vf) {
		return vf.Error(), true
	}
	switch {
	case errors.Is(err, errConflict):
		return err.Error(), true
	case errors.Is(err, errUnauthorized):
		return "Wrong login details.", true
	}
	return "", false
}
