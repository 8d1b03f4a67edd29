package failure

import "github.com/cockroachdb/errors"

var (
	// ErrAuthExpired marks causes that stem from expired or rejected credentials.
	ErrAuthExpired = errors.New("authorization expired")
	// ErrProtocolFatal marks causes that must always close the connection.
	ErrProtocolFatal = errors.New("fatal protocol failure")
)

// MarkAuthExpired tags err as an authorization failure.
func MarkAuthExpired(err error) error { return errors.Mark(err, ErrAuthExpired) }

// MarkProtocolFatal tags err as connection fatal.
func MarkProtocolFatal(err error) error { return errors.Mark(err, ErrProtocolFatal) }

// Class is the escalation decision a Classifier makes for a cause chain.
type Class uint8

const (
	ClassNone Class = iota
	ClassFatal
	ClassAuthExpired
)

// Classifier inspects a cause chain and decides whether it escalates.
type Classifier func(err error) Class

// DefaultClassifier recognises the marks declared in this package.
func DefaultClassifier(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrAuthExpired):
		return ClassAuthExpired
	case errors.Is(err, ErrProtocolFatal):
		return ClassFatal
	}
	if f, ok := AsFatality(err); ok {
		if f.Kind == FatalAuthExpired {
			return ClassAuthExpired
		}
		return ClassFatal
	}
	return ClassNone
}
