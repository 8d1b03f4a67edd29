// Package transport serves sessions over line-delimited JSON streams.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rbright/boltd/internal/engine"
	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/logging"
	"github.com/rbright/boltd/internal/reporting"
	"github.com/rbright/boltd/internal/session"
)

// Connection outcomes reported to the Observer.
const (
	ConnectionAccepted = "accepted"
	ConnectionRejected = "rejected"
)

// Observer receives per-message and per-connection measurements.
type Observer interface {
	ObserveMessage(messageType, outcome string, elapsed time.Duration)
	ObserveTransition(from, to fsm.State)
	ObserveFatality(kind failure.FatalKind)
	ObserveConnection(result string)
}

type noopObserver struct{}

func (noopObserver) ObserveMessage(string, string, time.Duration) {}
func (noopObserver) ObserveTransition(fsm.State, fsm.State)       {}
func (noopObserver) ObserveFatality(failure.FatalKind)            {}
func (noopObserver) ObserveConnection(string)                     {}

// Options configures a Server.
type Options struct {
	Table    fsm.Table
	Engine   *engine.Engine
	Registry *session.Registry
	Reporter *reporting.Reporter
	Observer Observer
	Tracer   trace.Tracer
	Logger   zerolog.Logger
	Clock    func() time.Time

	MaxConnections  int
	AcceptPerSecond float64
	QueueDepth      int
}

// Server accepts connections and drives one state machine per connection.
type Server struct {
	opts    Options
	log     zerolog.Logger
	slots   *semaphore.Weighted
	limiter *rate.Limiter
}

// NewServer validates opts and fills defaults.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil || opts.Registry == nil || opts.Reporter == nil {
		return nil, errors.New("transport: engine, registry and reporter are required")
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("boltd")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 256
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}

	limit := rate.Inf
	burst := 1
	if opts.AcceptPerSecond > 0 {
		limit = rate.Limit(opts.AcceptPerSecond)
		burst = max(1, int(opts.AcceptPerSecond))
	}

	return &Server{
		opts:    opts,
		log:     logging.WithComponent(opts.Logger, "transport"),
		slots:   semaphore.NewWeighted(int64(opts.MaxConnections)),
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Serve accepts clients until ctx is cancelled or the listener closes. It
// waits for every connection to finish before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.log.Info().Str(logging.FieldAddress, listener.Addr().String()).Msg("accepting sessions")

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			wg.Wait()
			return nil
		}

		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return errors.Wrap(err, "accept session connection")
		}

		if !s.slots.TryAcquire(1) {
			s.opts.Observer.ObserveConnection(ConnectionRejected)
			s.reject(conn)
			continue
		}
		s.opts.Observer.ObserveConnection(ConnectionAccepted)

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer s.slots.Release(1)
			s.serveConn(ctx, c)
		}(conn)
	}
}

// reject answers a connection over the limit with a transient failure.
func (s *Server) reject(c net.Conn) {
	defer c.Close()
	_ = c.SetWriteDeadline(s.opts.Clock().Add(time.Second))
	w := newResponseWriter(c)
	w.OnFailure(failure.From(failure.StatusNoThreadsAvailable, "The server has reached its connection limit."))
	s.log.Warn().Str(logging.FieldRemote, remoteAddr(c)).Msg("connection rejected at capacity")
}
