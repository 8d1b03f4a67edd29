// Package reporting routes session errors to structured logs and metrics.
package reporting

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/logging"
)

// ErrorObserver counts reported errors.
type ErrorObserver interface {
	ObserveError(err *failure.Error)
}

// Audiences of database error entries.
const (
	AudienceUser     = "user"
	AudienceInternal = "internal"
)

// Reporter implements fsm.SPI on top of zerolog.
type Reporter struct {
	log      zerolog.Logger
	version  string
	observer ErrorObserver
}

// New builds a server-wide reporter. observer may be nil.
func New(log zerolog.Logger, version string, observer ErrorObserver) *Reporter {
	return &Reporter{
		log:      logging.WithComponent(log, "session"),
		version:  version,
		observer: observer,
	}
}

// ForConnection returns a reporter whose entries carry the connection id.
func (r *Reporter) ForConnection(id string) *Reporter {
	return &Reporter{
		log:      r.log.With().Str(logging.FieldConnectionID, id).Logger(),
		version:  r.version,
		observer: r.observer,
	}
}

var _ fsm.SPI = (*Reporter)(nil)

// ReportError logs err. A database error is logged twice at error level: a
// one-line entry for users and an internal entry with the cause's stack.
// Client and transient errors are expected and go to debug.
func (r *Reporter) ReportError(err *failure.Error) {
	if err == nil {
		return
	}
	if r.observer != nil {
		r.observer.ObserveError(err)
	}

	status := err.Status()
	if status.Classification != failure.DatabaseError {
		r.log.Debug().
			Str(logging.FieldCode, status.Code()).
			Str(logging.FieldReference, err.Reference().String()).
			Bool("fatal", err.IsFatal()).
			Msg(err.Message())
		return
	}

	ref := err.Reference().String()
	r.log.Error().
		Str(logging.FieldAudience, AudienceUser).
		Str(logging.FieldCode, status.Code()).
		Str(logging.FieldReference, ref).
		Msgf("client triggered an unexpected error: %s, reference %s", err.Message(), ref)

	event := r.log.Error().
		Str(logging.FieldAudience, AudienceInternal).
		Str(logging.FieldCode, status.Code()).
		Str(logging.FieldReference, ref)
	if cause := err.Cause(); cause != nil {
		event = event.Str(logging.FieldStack, fmt.Sprintf("%+v", cause))
	}
	event.Msgf("client triggered an unexpected error: %s", err.Message())
}

func (r *Reporter) Version() string { return r.version }

// OnTerminate logs the end of a session.
func (r *Reporter) OnTerminate(connectionID string) {
	r.log.Info().Str(logging.FieldConnectionID, connectionID).Msg("session terminated")
}
