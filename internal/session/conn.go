// Package session tracks live connections and the state machines bound to them.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/boltd/internal/fsm"
)

// TransactionSource exposes the unit of work currently open on a connection.
type TransactionSource interface {
	Current() (fsm.TransactionHandle, bool)
}

// Conn is the connection-side state a machine consults between messages.
type Conn struct {
	id          string
	remote      string
	connectedAt time.Time

	interrupts atomic.Int32
	terminated atomic.Bool
	heap       atomic.Int64

	mu  sync.RWMutex
	txs TransactionSource
}

// NewConn allocates a connection with a fresh id.
func NewConn(remote string, connectedAt time.Time) *Conn {
	return &Conn{
		id:          "bolt-" + uuid.NewString(),
		remote:      remote,
		connectedAt: connectedAt,
	}
}

// Bind attaches the source of the connection's open transaction.
func (c *Conn) Bind(txs TransactionSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs = txs
}

func (c *Conn) ID() string             { return c.id }
func (c *Conn) Remote() string         { return c.remote }
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }
func (c *Conn) HeapBytes() int64       { return c.heap.Load() }

// Interrupt stacks one interrupt.
func (c *Conn) Interrupt() { c.interrupts.Add(1) }

// Interrupted reports whether any interrupt is outstanding.
func (c *Conn) Interrupted() bool { return c.interrupts.Load() > 0 }

// ResetInterrupt consumes one interrupt and reports whether none remain.
func (c *Conn) ResetInterrupt() bool {
	for {
		n := c.interrupts.Load()
		if n <= 0 {
			return true
		}
		if c.interrupts.CompareAndSwap(n, n-1) {
			return n == 1
		}
	}
}

func (c *Conn) MarkTerminated()  { c.terminated.Store(true) }
func (c *Conn) Terminated() bool { return c.terminated.Load() }

// Transaction returns the open transaction, if any.
func (c *Conn) Transaction() (fsm.TransactionHandle, bool) {
	c.mu.RLock()
	txs := c.txs
	c.mu.RUnlock()
	if txs == nil {
		return nil, false
	}
	return txs.Current()
}

// AllocateHeap records heap owned by this connection.
func (c *Conn) AllocateHeap(bytes int64) { c.heap.Add(bytes) }
