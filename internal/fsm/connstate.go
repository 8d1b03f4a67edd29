package fsm

import (
	"sync"

	"github.com/rbright/boltd/internal/failure"
)

// ConnectionState is the per-connection bookkeeping owned by one machine.
type ConnectionState struct {
	mu            sync.Mutex
	handler       ResponseHandler
	pendingError  *failure.Error
	pendingIgnore bool
	termination   *TerminationNotice
	closed        bool
}

// ResponseHandler returns the handler attached to the request in flight.
func (s *ConnectionState) ResponseHandler() ResponseHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func (s *ConnectionState) attach(h ResponseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// drain detaches the handler and returns it with the pending outcome.
func (s *ConnectionState) drain() (ResponseHandler, *failure.Error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, pending, ignored := s.handler, s.pendingError, s.pendingIgnore
	s.handler, s.pendingError, s.pendingIgnore = nil, nil, false
	if h == nil {
		h = discardHandler{}
	}
	return h, pending, ignored
}

// MarkFailed queues err for the current request. The first error wins.
func (s *ConnectionState) MarkFailed(err *failure.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingError == nil {
		s.pendingError = err
	}
	s.pendingIgnore = false
}

// MarkIgnored queues an IGNORED outcome unless a failure is already pending.
func (s *ConnectionState) MarkIgnored() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingError == nil {
		s.pendingIgnore = true
	}
}

func (s *ConnectionState) PendingError() *failure.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingError
}

func (s *ConnectionState) HasPendingIgnore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingIgnore
}

// SetPendingTerminationNotice records why the attached work was stopped.
func (s *ConnectionState) SetPendingTerminationNotice(n *TerminationNotice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.termination = n
}

// TakeTerminationNotice returns and clears the pending termination notice.
func (s *ConnectionState) TakeTerminationNotice() *TerminationNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.termination
	s.termination = nil
	return n
}

// ResetPending clears every queued outcome.
func (s *ConnectionState) ResetPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingError = nil
	s.pendingIgnore = false
	s.termination = nil
}

// CanProcessMessage reports whether a regular message may run a transition.
func (s *ConnectionState) CanProcessMessage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.pendingError == nil && !s.pendingIgnore
}

func (s *ConnectionState) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *ConnectionState) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OnMetadata forwards metadata to the attached handler.
func (s *ConnectionState) OnMetadata(key string, value any) {
	if h := s.ResponseHandler(); h != nil {
		h.OnMetadata(key, value)
	}
}

// OnRecord forwards a record to the attached handler.
func (s *ConnectionState) OnRecord(values []any) error {
	if h := s.ResponseHandler(); h != nil {
		return h.OnRecord(values)
	}
	return nil
}
