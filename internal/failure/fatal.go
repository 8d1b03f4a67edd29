package failure

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// FatalKind distinguishes why a connection has to be torn down.
type FatalKind uint8

const (
	FatalConnection FatalKind = iota + 1
	FatalProtocolBreach
	FatalAuthExpired
)

func (k FatalKind) String() string {
	switch k {
	case FatalConnection:
		return "connection"
	case FatalProtocolBreach:
		return "protocol_breach"
	case FatalAuthExpired:
		return "auth_expired"
	default:
		return "unknown"
	}
}

// Fatality is returned by the state machine when the connection must close.
// The error has already been reported and queued for the client.
type Fatality struct {
	Kind FatalKind
	Err  *Error
}

// NewFatality wraps a reported error.
func NewFatality(kind FatalKind, err *Error) *Fatality {
	return &Fatality{Kind: kind, Err: err}
}

func (f *Fatality) Error() string {
	return fmt.Sprintf("fatal %s failure: %s", f.Kind, f.Err.Message())
}

func (f *Fatality) Unwrap() error { return f.Err }

// AsFatality extracts a *Fatality from err's chain.
func AsFatality(err error) (*Fatality, bool) {
	var f *Fatality
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
