package session

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rbright/boltd/internal/fsm"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicate is returned when a session id is registered twice.
	ErrDuplicate = errors.New("session already registered")
)

// Session pairs a connection with its state machine.
type Session struct {
	Conn    *Conn
	Machine *fsm.Machine
	// Wake unblocks the transport so a terminated session closes promptly.
	Wake func()
}

// Info is a point-in-time view of a session.
type Info struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	Principal   string    `json:"principal,omitempty"`
	State       fsm.State `json:"state"`
	Protocol    string    `json:"protocol"`
	ConnectedAt time.Time `json:"connected_at"`
	Interrupted bool      `json:"interrupted"`
	Closed      bool      `json:"closed"`
	HeapBytes   int64     `json:"heap_bytes"`
}

// Info snapshots the session.
func (s *Session) Info() Info {
	return Info{
		ID:          s.Conn.ID(),
		Remote:      s.Conn.Remote(),
		Principal:   s.Machine.Principal(),
		State:       s.Machine.CurrentState(),
		Protocol:    s.Machine.Table().Version(),
		ConnectedAt: s.Conn.ConnectedAt(),
		Interrupted: s.Conn.Interrupted(),
		Closed:      s.Machine.IsClosed(),
		HeapBytes:   s.Conn.HeapBytes(),
	}
}

// Observer is notified as sessions come and go.
type Observer interface {
	SessionOpened(heapBytes int64)
	SessionClosed(heapBytes int64)
}

type noopObserver struct{}

func (noopObserver) SessionOpened(int64) {}
func (noopObserver) SessionClosed(int64) {}

// Registry indexes live sessions by connection id.
type Registry struct {
	observer Observer

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds an empty registry.
func NewRegistry(observer Observer) *Registry {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Registry{observer: observer, sessions: map[string]*Session{}}
}

// Register adds s.
func (r *Registry) Register(s *Session) error {
	id := s.Conn.ID()

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return errors.Wrapf(ErrDuplicate, "%s", id)
	}
	r.sessions[id] = s
	r.mu.Unlock()

	r.observer.SessionOpened(s.Conn.HeapBytes())
	return nil
}

// Unregister removes the session with id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		r.observer.SessionClosed(s.Conn.HeapBytes())
	}
}

// Get looks up one session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns every session ordered by connection time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Terminate marks the session for termination and wakes its transport.
func (r *Registry) Terminate(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s", id)
	}
	s.Machine.MarkForTermination()
	if s.Wake != nil {
		s.Wake()
	}
	return nil
}

// Interrupt interrupts the session as a RESET would.
func (r *Registry) Interrupt(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s", id)
	}
	s.Machine.Interrupt()
	return nil
}
