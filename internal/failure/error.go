package failure

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Error is an immutable description of one failure as the client will see it.
type Error struct {
	status    Status
	message   string
	cause     error
	reference uuid.UUID
	queryID   int64
	hasQuery  bool
	fatal     bool
}

// From builds a non-fatal error.
func From(status Status, message string) *Error {
	return &Error{status: status, message: message, reference: uuid.New()}
}

// FatalFrom builds an error that terminates the connection.
func FatalFrom(status Status, message string) *Error {
	e := From(status, message)
	e.fatal = true
	return e
}

// FromCause adapts any error. An *Error in the chain is reused; a status
// attached with WithStatus is honoured; anything else is an unknown error.
func FromCause(err error) *Error {
	return adapt(err, false)
}

// FatalFromCause is FromCause with the fatal flag forced on.
func FatalFromCause(err error) *Error {
	return adapt(err, true)
}

func adapt(err error, fatal bool) *Error {
	if err == nil {
		e := From(StatusUnknownError, "unknown failure")
		e.fatal = fatal
		return e
	}

	var existing *Error
	if errors.As(err, &existing) {
		if !fatal || existing.fatal {
			return existing
		}
		clone := *existing
		clone.fatal = true
		return &clone
	}

	status := StatusUnknownError
	if s, ok := StatusOf(err); ok {
		status = s
	} else if errors.Is(err, ErrAuthExpired) {
		status = StatusAuthorizationExpired
	}

	return &Error{
		status:    status,
		message:   err.Error(),
		cause:     err,
		reference: uuid.New(),
		fatal:     fatal,
	}
}

// WithQueryID returns a copy carrying the query the failure belongs to.
func (e *Error) WithQueryID(id int64) *Error {
	clone := *e
	clone.queryID = id
	clone.hasQuery = true
	return &clone
}

func (e *Error) Status() Status       { return e.status }
func (e *Error) Message() string      { return e.message }
func (e *Error) Cause() error         { return e.cause }
func (e *Error) Reference() uuid.UUID { return e.reference }
func (e *Error) IsFatal() bool        { return e.fatal }

// QueryID reports the query id when one was attached.
func (e *Error) QueryID() (int64, bool) { return e.queryID, e.hasQuery }

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.status.Code(), e.message)
}

// Unwrap exposes the cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

type withStatus struct {
	cause  error
	status Status
}

func (w *withStatus) Error() string { return w.cause.Error() }
func (w *withStatus) Unwrap() error { return w.cause }

// WithStatus attaches a client-visible status to err.
func WithStatus(err error, status Status) error {
	if err == nil {
		return nil
	}
	return &withStatus{cause: err, status: status}
}

// StatusOf finds the outermost status attached to err.
func StatusOf(err error) (Status, bool) {
	var w *withStatus
	if errors.As(err, &w) {
		return w.status, true
	}
	return Status{}, false
}
