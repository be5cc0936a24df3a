package workqueue

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies queue errors for the pipeline's error handling.
type Kind string

const (
	// KindDatabase covers query and storage failures.
	KindDatabase Kind = "database"
	// KindAlreadyClaimed marks expected contention, not a failure.
	KindAlreadyClaimed Kind = "already_claimed"
	// KindNotFound marks operations against items the backend does not know.
	KindNotFound Kind = "not_found"
	// KindConnection covers transport-level failures reaching the backend.
	KindConnection Kind = "connection"
	// KindOther covers everything else.
	KindOther Kind = "other"
)

// Error tags an underlying failure with its kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("workqueue: %s: %s", e.Op, e.Kind)
	default:
		return fmt.Sprintf("workqueue: %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the error kind, defaulting to KindOther for foreign errors.
func KindOf(err error) Kind {
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr.Kind
	}
	return KindOther
}

// IsAlreadyClaimed reports whether err represents claim contention.
func IsAlreadyClaimed(err error) bool {
	return KindOf(err) == KindAlreadyClaimed
}

// IsNotFound reports whether err represents a missing item.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsTransient reports whether err is infrastructure trouble worth retrying
// on a later pass (database or connection failures).
func IsTransient(err error) bool {
	kind := KindOf(err)
	return kind == KindDatabase || kind == KindConnection
}

// classifySQL sorts a database error into connection vs. database kinds.
// modernc.org/sqlite surfaces I/O and locking trouble as plain errors, so
// this is a best-effort string check.
func classifySQL(op string, err error) *Error {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"connection", "database is locked", "disk i/o", "unable to open"} {
		if strings.Contains(msg, needle) {
			return newError(KindConnection, op, err)
		}
	}
	return newError(KindDatabase, op, err)
}
