package session

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/message"
)

type idleProcessor struct{}

func (idleProcessor) Authenticate(token message.AuthToken) (fsm.AuthResult, error) {
	return fsm.AuthResult{Principal: token.Principal}, nil
}
func (idleProcessor) Begin(string, message.TxConfig) error { return nil }
func (idleProcessor) Run(string, message.Run) (fsm.RunResult, error) {
	return fsm.RunResult{}, nil
}
func (idleProcessor) Stream(int64, int64, bool, fsm.RecordSink) (fsm.StreamResult, error) {
	return fsm.StreamResult{}, nil
}
func (idleProcessor) Commit() (string, error) { return "", nil }
func (idleProcessor) Rollback() error         { return nil }
func (idleProcessor) Reset() error            { return nil }
func (idleProcessor) Logoff() error           { return nil }

type heapObserver struct{ opened, closed int64 }

func (o *heapObserver) SessionOpened(heap int64) { o.opened += heap }
func (o *heapObserver) SessionClosed(heap int64) { o.closed += heap }

func newSession(t *testing.T, connectedAt time.Time) *Session {
	t.Helper()
	conn := NewConn("local", connectedAt)
	machine, err := fsm.New(conn, fsm.Options{Processor: idleProcessor{}, Memory: conn})
	require.NoError(t, err)
	return &Session{Conn: conn, Machine: machine}
}

func TestRegisterAndUnregister(t *testing.T) {
	observer := &heapObserver{}
	r := NewRegistry(observer)
	s := newSession(t, time.Unix(10, 0))

	require.NoError(t, r.Register(s))
	require.True(t, errors.Is(r.Register(s), ErrDuplicate))
	require.Equal(t, 1, r.Len())
	require.Positive(t, observer.opened)

	got, ok := r.Get(s.Conn.ID())
	require.True(t, ok)
	require.Same(t, s, got)

	r.Unregister(s.Conn.ID())
	r.Unregister(s.Conn.ID())
	require.Zero(t, r.Len())
	require.Equal(t, observer.opened, observer.closed)
}

func TestListOrdersByConnectionTime(t *testing.T) {
	r := NewRegistry(nil)
	late := newSession(t, time.Unix(20, 0))
	early := newSession(t, time.Unix(10, 0))
	require.NoError(t, r.Register(late))
	require.NoError(t, r.Register(early))

	infos := r.List()

	require.Len(t, infos, 2)
	require.Equal(t, early.Conn.ID(), infos[0].ID)
	require.Equal(t, late.Conn.ID(), infos[1].ID)
	require.Equal(t, fsm.StateNegotiation, infos[0].State)
	require.Equal(t, "5.1", infos[0].Protocol)
}

func TestTerminateMarksAndWakes(t *testing.T) {
	r := NewRegistry(nil)
	s := newSession(t, time.Now())
	woken := false
	s.Wake = func() { woken = true }
	require.NoError(t, r.Register(s))

	require.NoError(t, r.Terminate(s.Conn.ID()))

	require.True(t, woken)
	require.True(t, s.Conn.Terminated())
	require.NoError(t, s.Machine.Process(message.Hello{}, nil))
	require.True(t, s.Machine.IsClosed())
}

func TestInterruptFlagsConnection(t *testing.T) {
	r := NewRegistry(nil)
	s := newSession(t, time.Now())
	require.NoError(t, r.Register(s))

	require.NoError(t, r.Interrupt(s.Conn.ID()))

	require.True(t, s.Conn.Interrupted())
	require.True(t, s.Info().Interrupted)
}

func TestUnknownSession(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, errors.Is(r.Terminate("bolt-x"), ErrNotFound))
	require.True(t, errors.Is(r.Interrupt("bolt-x"), ErrNotFound))
}
