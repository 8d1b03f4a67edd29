// Package fsm implements the per-connection session state machine: it
// sequences client requests, rejects out-of-order messages, and delivers
// exactly one outcome per request.
package fsm

import (
	"time"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/message"
)

// State names one mode of a session's request-processing lifecycle.
type State string

const (
	StateInvalid        State = ""
	StateNegotiation    State = "negotiation"
	StateAuthentication State = "authentication"
	StateReady          State = "ready"
	StateStreaming      State = "streaming"
	StateTxReady        State = "tx_ready"
	StateTxStreaming    State = "tx_streaming"
	StateFailed         State = "failed"
	StateInterrupted    State = "interrupted"
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == StateInvalid {
		return "invalid"
	}
	return string(s)
}

// ResponseHandler receives the outcome of one request. Exactly one of
// OnSuccess, OnFailure or OnIgnored is called per Process call.
type ResponseHandler interface {
	OnMetadata(key string, value any)
	OnRecord(values []any) error
	OnSuccess()
	OnFailure(err *failure.Error)
	OnIgnored()
}

// RecordSink receives streamed records.
type RecordSink interface {
	OnRecord(values []any) error
}

// TerminationNotice explains why running work was stopped.
type TerminationNotice struct {
	Status failure.Status
	Reason string
}

// TransactionHandle is the unit of work attached to a connection.
type TransactionHandle interface {
	// Validate reports a notice when the work was marked for termination.
	Validate() (*TerminationNotice, error)
	MarkForTermination(status failure.Status, reason string)
}

// Connection is the transport-side collaborator of a machine.
type Connection interface {
	ID() string
	Interrupt()
	Interrupted() bool
	// ResetInterrupt consumes one interrupt and reports whether none remain.
	ResetInterrupt() bool
	Transaction() (TransactionHandle, bool)
	MarkTerminated()
	Terminated() bool
}

// AuthResult is an authenticated principal.
type AuthResult struct {
	Principal          string
	CredentialsExpired bool
	// ExpiresAt is zero when the authorization never expires.
	ExpiresAt time.Time
}

// RunResult describes a freshly opened result.
type RunResult struct {
	QueryID int64
	Fields  []string
}

// StreamResult describes the end of one PULL or DISCARD batch.
type StreamResult struct {
	HasMore     bool
	Bookmark    string
	Type        string
	Database    string
	OpenResults int
}

// Processor executes the work behind each request.
type Processor interface {
	Authenticate(token message.AuthToken) (AuthResult, error)
	Begin(principal string, cfg message.TxConfig) error
	Run(principal string, run message.Run) (RunResult, error)
	Stream(qid, n int64, discard bool, sink RecordSink) (StreamResult, error)
	Commit() (string, error)
	Rollback() error
	// Reset rolls back and discards all open work.
	Reset() error
	Logoff() error
}

// SPI reports errors and exposes version information. It owns all logging.
type SPI interface {
	ReportError(err *failure.Error)
	Version() string
	OnTerminate(connectionID string)
}

// MemoryTracker accounts heap owned by a connection.
type MemoryTracker interface {
	AllocateHeap(bytes int64)
}

type noopSPI struct{}

func (noopSPI) ReportError(*failure.Error) {}
func (noopSPI) Version() string            { return "boltd" }
func (noopSPI) OnTerminate(string)         {}

type noopMemory struct{}

func (noopMemory) AllocateHeap(int64) {}

type discardHandler struct{}

func (discardHandler) OnMetadata(string, any)   {}
func (discardHandler) OnRecord([]any) error     { return nil }
func (discardHandler) OnSuccess()               {}
func (discardHandler) OnFailure(*failure.Error) {}
func (discardHandler) OnIgnored()               {}
