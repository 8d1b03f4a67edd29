package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
)

type stubTx struct{ marked []string }

func (s *stubTx) Validate() (*fsm.TerminationNotice, error) { return nil, nil }
func (s *stubTx) MarkForTermination(_ failure.Status, reason string) {
	s.marked = append(s.marked, reason)
}

type stubSource struct{ tx *stubTx }

func (s stubSource) Current() (fsm.TransactionHandle, bool) {
	if s.tx == nil {
		return nil, false
	}
	return s.tx, true
}

func TestNewConnAssignsUniqueIDs(t *testing.T) {
	a := NewConn("a", time.Unix(1, 0))
	b := NewConn("b", time.Unix(1, 0))

	require.True(t, strings.HasPrefix(a.ID(), "bolt-"))
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, "a", a.Remote())
	require.Equal(t, time.Unix(1, 0), a.ConnectedAt())
}

func TestStackedInterrupts(t *testing.T) {
	c := NewConn("local", time.Now())
	require.False(t, c.Interrupted())
	require.True(t, c.ResetInterrupt())

	c.Interrupt()
	c.Interrupt()
	require.True(t, c.Interrupted())
	require.False(t, c.ResetInterrupt())
	require.True(t, c.Interrupted())
	require.True(t, c.ResetInterrupt())
	require.False(t, c.Interrupted())
}

func TestConcurrentInterruptsAreAllCounted(t *testing.T) {
	c := NewConn("local", time.Now())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Interrupt()
		}()
	}
	wg.Wait()

	resets := 0
	for c.Interrupted() {
		c.ResetInterrupt()
		resets++
	}
	require.Equal(t, 50, resets)
}

func TestTransactionFollowsBoundSource(t *testing.T) {
	c := NewConn("local", time.Now())
	_, ok := c.Transaction()
	require.False(t, ok)

	c.Bind(stubSource{})
	_, ok = c.Transaction()
	require.False(t, ok)

	tx := &stubTx{}
	c.Bind(stubSource{tx: tx})
	got, ok := c.Transaction()
	require.True(t, ok)
	got.MarkForTermination(failure.StatusTransactionTerminated, "stop")
	require.Equal(t, []string{"stop"}, tx.marked)
}

func TestTerminationAndHeap(t *testing.T) {
	c := NewConn("local", time.Now())
	require.False(t, c.Terminated())
	c.MarkTerminated()
	require.True(t, c.Terminated())

	c.AllocateHeap(64)
	c.AllocateHeap(36)
	require.Equal(t, int64(100), c.HeapBytes())
}
