package fsm

import (
	"sync"
	"sync/atomic"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/message"
)

type fakeTx struct {
	mu          sync.Mutex
	notice      *TerminationNotice
	validateErr error
	marked      []failure.Status
}

func (tx *fakeTx) Validate() (*TerminationNotice, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.notice, tx.validateErr
}

func (tx *fakeTx) MarkForTermination(status failure.Status, reason string) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.marked = append(tx.marked, status)
	tx.notice = &TerminationNotice{Status: status, Reason: reason}
}

func (tx *fakeTx) markedCount() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.marked)
}

type fakeConn struct {
	id         string
	interrupts atomic.Int32
	terminated atomic.Bool

	mu sync.Mutex
	tx *fakeTx
}

func (c *fakeConn) ID() string        { return c.id }
func (c *fakeConn) Interrupt()        { c.interrupts.Add(1) }
func (c *fakeConn) Interrupted() bool { return c.interrupts.Load() > 0 }
func (c *fakeConn) MarkTerminated()   { c.terminated.Store(true) }
func (c *fakeConn) Terminated() bool  { return c.terminated.Load() }

func (c *fakeConn) ResetInterrupt() bool {
	for {
		n := c.interrupts.Load()
		if n == 0 {
			return true
		}
		if c.interrupts.CompareAndSwap(n, n-1) {
			return n == 1
		}
	}
}

func (c *fakeConn) Transaction() (TransactionHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil, false
	}
	return c.tx, true
}

func (c *fakeConn) attach(tx *fakeTx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tx = tx
}

func (c *fakeConn) current() *fakeTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx
}

type fakeProcessor struct {
	conn *fakeConn

	auth     AuthResult
	authErr  error
	beginErr error
	runErr   error
	runPanic bool
	resetErr error

	records [][]any
	cursor  int
	open    int
	resets  int
	logoffs int
}

func (p *fakeProcessor) Authenticate(message.AuthToken) (AuthResult, error) {
	return p.auth, p.authErr
}

func (p *fakeProcessor) Begin(string, message.TxConfig) error {
	if p.beginErr != nil {
		return p.beginErr
	}
	p.conn.attach(&fakeTx{})
	return nil
}

func (p *fakeProcessor) Run(string, message.Run) (RunResult, error) {
	if p.runPanic {
		panic("engine exploded")
	}
	if p.runErr != nil {
		return RunResult{}, p.runErr
	}
	p.open++
	p.cursor = 0
	return RunResult{QueryID: int64(p.open - 1), Fields: []string{"x"}}, nil
}

func (p *fakeProcessor) Stream(_, n int64, discard bool, sink RecordSink) (StreamResult, error) {
	for n != 0 && p.cursor < len(p.records) {
		if !discard {
			if err := sink.OnRecord(p.records[p.cursor]); err != nil {
				return StreamResult{}, err
			}
		}
		p.cursor++
		if n > 0 {
			n--
		}
	}
	if p.cursor < len(p.records) {
		return StreamResult{HasMore: true}, nil
	}
	p.open--
	result := StreamResult{Type: "r", OpenResults: p.open}
	if p.conn.current() == nil {
		result.Bookmark = "bm:auto"
	}
	return result, nil
}

func (p *fakeProcessor) Commit() (string, error) {
	p.conn.attach(nil)
	return "bm:commit", nil
}

func (p *fakeProcessor) Rollback() error {
	p.conn.attach(nil)
	return nil
}

func (p *fakeProcessor) Reset() error {
	p.resets++
	p.open = 0
	p.conn.attach(nil)
	return p.resetErr
}

func (p *fakeProcessor) Logoff() error {
	p.logoffs++
	return nil
}

type fakeSPI struct {
	mu         sync.Mutex
	reported   []*failure.Error
	terminated []string
}

func (s *fakeSPI) ReportError(err *failure.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported = append(s.reported, err)
}

func (s *fakeSPI) Version() string { return "boltd/test" }

func (s *fakeSPI) OnTerminate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = append(s.terminated, id)
}

func (s *fakeSPI) reportedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reported)
}

type fakeMemory struct{ calls, bytes int64 }

func (m *fakeMemory) AllocateHeap(n int64) {
	m.calls++
	m.bytes += n
}

type recordingHandler struct {
	metadata  map[string]any
	records   [][]any
	recordErr error

	successes int
	failures  int
	ignored   int
	failure   *failure.Error
}

func newHandler() *recordingHandler {
	return &recordingHandler{metadata: map[string]any{}}
}

func (h *recordingHandler) OnMetadata(key string, value any) { h.metadata[key] = value }

func (h *recordingHandler) OnRecord(values []any) error {
	if h.recordErr != nil {
		return h.recordErr
	}
	h.records = append(h.records, values)
	return nil
}

func (h *recordingHandler) OnSuccess() { h.successes++ }
func (h *recordingHandler) OnIgnored() { h.ignored++ }

func (h *recordingHandler) OnFailure(err *failure.Error) {
	h.failures++
	h.failure = err
}

func (h *recordingHandler) outcomes() int { return h.successes + h.failures + h.ignored }
