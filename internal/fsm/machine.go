package fsm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/message"
)

// contextShallowSize is the heap a machine accounts for once at construction.
const contextShallowSize = int64(unsafe.Sizeof(Context{}) + unsafe.Sizeof(ConnectionState{}) + unsafe.Sizeof(Machine{}))

const (
	interruptedReason = "The transaction has been terminated by a RESET request."
	terminatedReason  = "The connection has been terminated by an administrator."
)

// ErrMissingCollaborator is returned by New when a required dependency is nil.
var ErrMissingCollaborator = errors.New("missing state machine collaborator")

// Options configures a Machine. Zero fields fall back to defaults.
type Options struct {
	Table      Table
	SPI        SPI
	Processor  Processor
	Classifier failure.Classifier
	Clock      func() time.Time
	Memory     MemoryTracker
}

// Machine is the state machine of one connection.
//
// Process, HandleExternalFailure and MarkFailed serialise on an internal
// mutex. HandleFailure, Reset and ValidateTransaction must only be called
// from the goroutine driving Process. Interrupt, MarkForTermination,
// CurrentState and IsClosed are safe from any goroutine.
type Machine struct {
	id        string
	table     Table
	spi       SPI
	conn      Connection
	processor Processor
	classify  failure.Classifier
	clock     func() time.Time

	connState *ConnectionState
	ctx       *Context

	mu        sync.Mutex
	state     atomic.Value
	closeOnce sync.Once
	closeErr  error
}

// New builds a machine in the table's initial state.
func New(conn Connection, opts Options) (*Machine, error) {
	if conn == nil {
		return nil, errors.Wrap(ErrMissingCollaborator, "connection")
	}
	if opts.Processor == nil {
		return nil, errors.Wrap(ErrMissingCollaborator, "processor")
	}
	if opts.Table.version == "" {
		opts.Table = TableV51()
	}
	if opts.SPI == nil {
		opts.SPI = noopSPI{}
	}
	if opts.Classifier == nil {
		opts.Classifier = failure.DefaultClassifier
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Memory == nil {
		opts.Memory = noopMemory{}
	}

	m := &Machine{
		id:        conn.ID(),
		table:     opts.Table,
		spi:       opts.SPI,
		conn:      conn,
		processor: opts.Processor,
		classify:  opts.Classifier,
		clock:     opts.Clock,
		connState: &ConnectionState{},
	}
	m.ctx = &Context{machine: m}
	m.state.Store(opts.Table.Initial())
	opts.Memory.AllocateHeap(contextShallowSize)
	return m, nil
}

func (m *Machine) ID() string                        { return m.id }
func (m *Machine) Table() Table                      { return m.table }
func (m *Machine) ConnectionState() *ConnectionState { return m.connState }
func (m *Machine) IsClosed() bool                    { return m.connState.IsClosed() }

// CurrentState returns a snapshot of the current state.
func (m *Machine) CurrentState() State {
	return m.state.Load().(State)
}

// Principal returns the authenticated user, or "" before authentication.
func (m *Machine) Principal() string {
	return m.ctx.Principal()
}

func (m *Machine) setState(s State) {
	m.state.Store(s)
}

// Process runs msg through the current state and reports exactly one
// outcome to h. A non-nil error is always a *failure.Fatality and means the
// connection must be closed.
func (m *Machine) Process(msg message.Request, h ResponseHandler) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.before(h)
	dropped := true
	defer func() { m.after(dropped) }()

	if m.connState.IsClosed() {
		return nil
	}
	if msg.SafeToProcessInAnyState() || m.connState.CanProcessMessage() {
		dropped = false
		err = m.nextState(msg)
	}
	return err
}

func (m *Machine) before(h ResponseHandler) {
	if h == nil {
		h = discardHandler{}
	}
	if m.conn.Terminated() {
		if !m.connState.IsClosed() {
			if err := m.Close(); err != nil {
				m.spi.ReportError(failure.FromCause(err))
			}
		}
	} else if m.conn.Interrupted() {
		m.setState(m.table.Interrupted())
	}
	m.connState.attach(h)
}

func (m *Machine) after(dropped bool) {
	h, pending, ignored := m.connState.drain()
	switch {
	case pending != nil:
		h.OnFailure(pending)
	case ignored || dropped:
		h.OnIgnored()
	default:
		h.OnSuccess()
	}
}

func (m *Machine) nextState(msg message.Request) (err error) {
	current := m.CurrentState()

	defer func() {
		if r := recover(); r != nil {
			err = m.HandleFailure(errors.Newf("panic while handling %s in the %s state: %v", msg.Signature(), current, r), true)
		}
	}()

	next, ok, terr := m.table.Transition(current, m.ctx, msg)
	if terr != nil {
		if f, isFatal := failure.AsFatality(terr); isFatal {
			return f
		}
		return m.HandleFailure(terr, false)
	}
	if !ok {
		breach := failure.FatalFrom(failure.StatusRequestInvalid,
			fmt.Sprintf("Message '%s' cannot be handled by a session in the %s state.", msg.Signature(), current.String()))
		m.fail(breach)
		m.setState(m.table.Failed())
		return failure.NewFatality(failure.FatalProtocolBreach, breach)
	}
	m.setState(next)
	return nil
}

// fail reports err and queues it, or demotes it to IGNORED when the
// machine already failed.
func (m *Machine) fail(err *failure.Error) {
	m.spi.ReportError(err)
	if m.CurrentState() == m.table.Failed() {
		m.connState.MarkIgnored()
		return
	}
	m.connState.MarkFailed(err)
	m.setState(m.table.Failed())
}

// MarkFailed fails the machine outside of message processing.
func (m *Machine) MarkFailed(err *failure.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fail(err)
	m.setState(m.table.Failed())
}

// HandleExternalFailure reports a failure raised outside Process, using h
// for the outcome. Nothing is recorded when a result is already pending.
func (m *Machine) HandleExternalFailure(err *failure.Error, h ResponseHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.before(h)
	dropped := true
	defer func() { m.after(dropped) }()

	if !m.connState.CanProcessMessage() {
		return nil
	}
	dropped = false
	m.fail(err)
	m.setState(m.table.Failed())
	if err.IsFatal() {
		return failure.NewFatality(failure.FatalConnection, err)
	}
	return nil
}

// HandleFailure adapts cause into a client error and reports it. It returns
// a *failure.Fatality when the failure is fatal and nil otherwise.
func (m *Machine) HandleFailure(cause error, fatal bool) error {
	class := m.classify(cause)

	var err *failure.Error
	if fatal || class != failure.ClassNone {
		err = failure.FatalFromCause(cause)
	} else {
		err = failure.FromCause(cause)
	}
	m.fail(err)

	if !err.IsFatal() {
		return nil
	}
	if class == failure.ClassAuthExpired {
		return failure.NewFatality(failure.FatalAuthExpired, err)
	}
	return failure.NewFatality(failure.FatalConnection, err)
}

// ValidateTransaction records a termination notice of the attached
// transaction, if any.
func (m *Machine) ValidateTransaction() error {
	tx, ok := m.conn.Transaction()
	if !ok {
		return nil
	}
	notice, err := tx.Validate()
	if err != nil {
		return errors.Wrap(err, "validate transaction")
	}
	if notice != nil {
		m.connState.SetPendingTerminationNotice(notice)
	}
	return nil
}

// Interrupt flags the connection and stops the attached transaction. The
// machine enters the interrupted state at the next Process call.
func (m *Machine) Interrupt() {
	m.conn.Interrupt()
	if tx, ok := m.conn.Transaction(); ok {
		tx.MarkForTermination(failure.StatusTransactionTerminated, interruptedReason)
	}
}

// Reset consumes one interrupt. It returns false while interrupts remain;
// otherwise it clears queued outcomes and discards open work.
func (m *Machine) Reset() (bool, error) {
	if !m.conn.ResetInterrupt() {
		return false, nil
	}
	m.connState.ResetPending()
	if err := m.processor.Reset(); err != nil {
		return false, m.HandleFailure(errors.Wrap(err, "reset session"), true)
	}
	return true, nil
}

// MarkForTermination asks the machine to close at its next message.
func (m *Machine) MarkForTermination() {
	m.conn.MarkTerminated()
	if tx, ok := m.conn.Transaction(); ok {
		tx.MarkForTermination(failure.StatusTransactionTerminated, terminatedReason)
	}
}

// Close releases open work and notifies the SPI. It is idempotent.
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		m.connState.markClosed()
		if err := m.processor.Reset(); err != nil {
			m.closeErr = errors.Wrap(err, "release session work")
		}
		m.spi.OnTerminate(m.id)
	})
	return m.closeErr
}
