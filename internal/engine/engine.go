// Package engine is the in-memory statement processor behind each session.
package engine

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/message"
)

const (
	bookmarkPrefix  = "FB:boltd:"
	defaultDatabase = "neo4j"
)

// Authenticator verifies client credentials.
type Authenticator interface {
	Authenticate(token message.AuthToken) (fsm.AuthResult, error)
}

// Engine owns state shared by every session: the bookmark sequence and
// the clock used for transaction timeouts.
type Engine struct {
	auth      Authenticator
	clock     func() time.Time
	committed atomic.Int64
}

// New builds an engine. A nil clock uses time.Now.
func New(auth Authenticator, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{auth: auth, clock: clock}
}

// LastBookmark returns the newest bookmark handed out.
func (e *Engine) LastBookmark() string {
	return bookmarkPrefix + strconv.FormatInt(e.committed.Load(), 10)
}

func (e *Engine) nextBookmark() string {
	return bookmarkPrefix + strconv.FormatInt(e.committed.Add(1), 10)
}

func (e *Engine) checkBookmarks(bookmarks []string) error {
	last := e.committed.Load()
	for _, b := range bookmarks {
		seq, ok := strings.CutPrefix(b, bookmarkPrefix)
		n, err := strconv.ParseInt(seq, 10, 64)
		if !ok || err != nil || n < 0 {
			return failure.WithStatus(errors.Newf("Supplied bookmark [%s] does not conform to pattern %s<n>", b, bookmarkPrefix), failure.StatusInvalidBookmark)
		}
		if n > last {
			return failure.WithStatus(errors.Newf("Database not up to requested bookmark %s, latest is %d", b, last), failure.StatusInvalidBookmark)
		}
	}
	return nil
}

// Transaction is one unit of work. It may be marked for termination from
// any goroutine.
type Transaction struct {
	id        string
	explicit  bool
	database  string
	mode      message.AccessMode
	metadata  map[string]any
	startedAt time.Time
	timeout   time.Duration
	clock     func() time.Time

	mu     sync.Mutex
	notice *fsm.TerminationNotice
}

func (e *Engine) begin(cfg message.TxConfig, explicit bool) (*Transaction, error) {
	if err := e.checkBookmarks(cfg.Bookmarks); err != nil {
		return nil, err
	}
	database := cfg.Database
	if database == "" {
		database = defaultDatabase
	}
	mode := cfg.Mode
	if mode == "" {
		mode = message.AccessWrite
	}
	return &Transaction{
		id:        uuid.NewString(),
		explicit:  explicit,
		database:  database,
		mode:      mode,
		metadata:  cfg.Metadata,
		startedAt: e.clock(),
		timeout:   cfg.Timeout,
		clock:     e.clock,
	}, nil
}

func (t *Transaction) ID() string { return t.id }

// Validate returns a notice once the transaction was marked for
// termination or ran past its timeout.
func (t *Transaction) Validate() (*fsm.TerminationNotice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.notice == nil && t.timeout > 0 && t.clock().Sub(t.startedAt) >= t.timeout {
		t.notice = &fsm.TerminationNotice{
			Status: failure.StatusTransactionTimedOut,
			Reason: "The transaction has not completed within the specified timeout.",
		}
	}
	if t.notice == nil {
		return nil, nil
	}
	n := *t.notice
	return &n, nil
}

// MarkForTermination records the first termination request.
func (t *Transaction) MarkForTermination(status failure.Status, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.notice == nil {
		t.notice = &fsm.TerminationNotice{Status: status, Reason: reason}
	}
}

type result struct {
	cursor *cursor
}

// Session is the processor of one connection.
type Session struct {
	engine *Engine

	// tx is written under mu and read without it by Current, so an
	// interrupt reaches a transaction while Stream is delivering records.
	tx atomic.Pointer[Transaction]

	mu      sync.Mutex
	results map[int64]*result
	nextQID int64
	lastQID int64
}

// NewSession opens a processor for one connection.
func (e *Engine) NewSession() *Session {
	return &Session{engine: e, results: map[int64]*result{}, lastQID: -1}
}

// Current returns the open transaction, explicit or autocommit.
func (s *Session) Current() (fsm.TransactionHandle, bool) {
	tx := s.tx.Load()
	if tx == nil {
		return nil, false
	}
	return tx, true
}

// Authenticate delegates to the engine's authenticator.
func (s *Session) Authenticate(token message.AuthToken) (fsm.AuthResult, error) {
	if s.engine.auth == nil {
		return fsm.AuthResult{}, failure.MarkAuthExpired(
			failure.WithStatus(errors.New("authentication is not configured"), failure.StatusUnauthorized))
	}
	return s.engine.auth.Authenticate(token)
}

// Begin opens an explicit transaction.
func (s *Session) Begin(_ string, cfg message.TxConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx.Load() != nil {
		return failure.From(failure.StatusRequestInvalid, "Nested transactions are not supported.")
	}
	tx, err := s.engine.begin(cfg, true)
	if err != nil {
		return err
	}
	s.tx.Store(tx)
	return nil
}

// Run compiles a statement and opens its result. Without an explicit
// transaction it runs in an autocommit transaction.
func (s *Session) Run(_ string, run message.Run) (fsm.RunResult, error) {
	pl, err := compile(run.Query)
	if err != nil {
		return fsm.RunResult{}, err
	}
	if err := pl.checkParams(run.Params); err != nil {
		return fsm.RunResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx.Load() == nil {
		tx, err := s.engine.begin(run.TxConfig, false)
		if err != nil {
			return fsm.RunResult{}, err
		}
		s.tx.Store(tx)
	}

	qid := s.nextQID
	s.nextQID++
	s.results[qid] = &result{cursor: newCursor(pl, run.Params)}
	s.lastQID = qid
	return fsm.RunResult{QueryID: qid, Fields: pl.fields}, nil
}

// Stream sends up to n records of a result to sink, or skips them when
// discard is set. The transaction is validated before every record.
func (s *Session) Stream(qid, n int64, discard bool, sink fsm.RecordSink) (fsm.StreamResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qid == message.LastQuery {
		qid = s.lastQID
	}
	res, ok := s.results[qid]
	tx := s.tx.Load()
	if !ok || tx == nil {
		return fsm.StreamResult{}, failure.From(failure.StatusResultNotFound, "No result available for query id "+strconv.FormatInt(qid, 10)+".")
	}

	for n != 0 && !res.cursor.exhausted() {
		notice, err := tx.Validate()
		if err != nil {
			return fsm.StreamResult{}, err
		}
		if notice != nil {
			return fsm.StreamResult{}, failure.From(notice.Status, notice.Reason)
		}

		values, _ := res.cursor.advance()
		if !discard {
			if err := sink.OnRecord(values); err != nil {
				return fsm.StreamResult{}, errors.Wrap(err, "deliver record")
			}
		}
		if n > 0 {
			n--
		}
	}
	if !res.cursor.exhausted() {
		return fsm.StreamResult{HasMore: true}, nil
	}

	delete(s.results, qid)
	out := fsm.StreamResult{
		Type:        resultType(tx.mode),
		Database:    tx.database,
		OpenResults: len(s.results),
	}
	if !tx.explicit {
		out.Bookmark = s.engine.nextBookmark()
		s.clear()
	}
	return out, nil
}

// Commit commits the explicit transaction and returns its bookmark.
func (s *Session) Commit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.tx.Load()
	if tx == nil || !tx.explicit {
		return "", failure.From(failure.StatusTransactionNotFound, "There is no open transaction to commit.")
	}
	notice, err := tx.Validate()
	if err != nil {
		return "", err
	}
	if notice != nil {
		return "", failure.From(notice.Status, notice.Reason)
	}
	s.clear()
	return s.engine.nextBookmark(), nil
}

// Rollback discards the explicit transaction.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx := s.tx.Load(); tx == nil || !tx.explicit {
		return failure.From(failure.StatusTransactionNotFound, "There is no open transaction to roll back.")
	}
	s.clear()
	return nil
}

// Reset discards every open transaction and result.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	return nil
}

// Logoff drops open work ahead of re-authentication.
func (s *Session) Logoff() error {
	return s.Reset()
}

func (s *Session) clear() {
	s.tx.Store(nil)
	s.results = map[int64]*result{}
	s.nextQID = 0
	s.lastQID = -1
}

func resultType(mode message.AccessMode) string {
	if mode == message.AccessRead {
		return "r"
	}
	return "rw"
}
