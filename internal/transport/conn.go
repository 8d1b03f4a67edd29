package transport

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/logging"
	"github.com/rbright/boltd/internal/message"
	"github.com/rbright/boltd/internal/metrics"
	"github.com/rbright/boltd/internal/session"
)

const maxLineBytes = 1 << 20

// inbound is one decoded line handed from the reader to the worker.
type inbound struct {
	req       message.Request
	decodeErr error
}

func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	defer c.Close()

	remote := remoteAddr(c)
	conn := session.NewConn(remote, s.opts.Clock())
	processor := s.opts.Engine.NewSession()
	conn.Bind(processor)

	log := s.log.With().Str(logging.FieldConnectionID, conn.ID()).Str(logging.FieldRemote, remote).Logger()

	machine, err := fsm.New(conn, fsm.Options{
		Table:     s.opts.Table,
		SPI:       s.opts.Reporter.ForConnection(conn.ID()),
		Processor: processor,
		Clock:     s.opts.Clock,
		Memory:    conn,
	})
	if err != nil {
		log.Error().Err(err).Msg("create session state machine")
		return
	}

	wake := func() { _ = c.SetReadDeadline(time.Unix(1, 0)) }
	stopWake := context.AfterFunc(ctx, wake)
	defer stopWake()

	if err := s.opts.Registry.Register(&session.Session{Conn: conn, Machine: machine, Wake: wake}); err != nil {
		log.Error().Err(err).Msg("register session")
		return
	}
	defer s.opts.Registry.Unregister(conn.ID())
	log.Debug().Msg("session opened")

	queue := make(chan inbound, s.opts.QueueDepth)
	done := make(chan struct{})
	go s.read(c, machine, queue, done)

	s.work(ctx, machine, newResponseWriter(c), queue, log)
	close(done)
	_ = c.Close()

	if err := machine.Close(); err != nil {
		log.Warn().Err(err).Msg("close session")
	}
}

// read decodes lines and queues them for the worker. A RESET interrupts the
// machine before it is queued so running work stops early.
func (s *Server) read(c net.Conn, machine *fsm.Machine, queue chan<- inbound, done <-chan struct{}) {
	defer close(queue)

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := message.Decode(line)
		item := inbound{req: req, decodeErr: err}
		if _, ok := req.(message.Reset); ok {
			machine.Interrupt()
		}

		select {
		case queue <- item:
		case <-done:
			return
		}
		if _, ok := req.(message.Goodbye); ok || err != nil {
			return
		}
	}
}

// work processes queued requests until the queue closes or the session ends.
func (s *Server) work(ctx context.Context, machine *fsm.Machine, w *responseWriter, queue <-chan inbound, log zerolog.Logger) {
	for item := range queue {
		if item.decodeErr != nil {
			bad := failure.FatalFrom(failure.StatusRequestInvalidFormat, item.decodeErr.Error())
			if err := machine.HandleExternalFailure(bad, w); err != nil {
				s.fatal(err, log)
			}
			return
		}
		if _, ok := item.req.(message.Goodbye); ok {
			log.Debug().Msg("client said goodbye")
			return
		}

		if err := s.process(ctx, machine, item.req, w, log); err != nil {
			s.fatal(err, log)
			return
		}
		if machine.IsClosed() {
			log.Info().Msg("session closed by termination")
			return
		}
	}
}

func (s *Server) process(ctx context.Context, machine *fsm.Machine, req message.Request, w *responseWriter, log zerolog.Logger) error {
	sig := string(req.Signature())
	from := machine.CurrentState()
	started := s.opts.Clock()

	_, span := s.opts.Tracer.Start(ctx, "bolt."+sig,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("bolt.connection_id", machine.ID()),
			attribute.String("bolt.state_from", from.String()),
		),
	)
	defer span.End()

	err := machine.Process(req, w)
	outcome, code, writeErr := w.take()
	to := machine.CurrentState()

	span.SetAttributes(attribute.String("bolt.state_to", to.String()), attribute.String("bolt.outcome", outcome))
	if outcome == metrics.OutcomeFailure {
		span.SetStatus(codes.Error, code)
	}

	s.opts.Observer.ObserveMessage(sig, outcome, s.opts.Clock().Sub(started))
	s.opts.Observer.ObserveTransition(from, to)

	log.Trace().
		Str(logging.FieldMessage, sig).
		Str(logging.FieldOldState, from.String()).
		Str(logging.FieldNewState, to.String()).
		Msg("processed")

	if err != nil {
		span.RecordError(err)
		return err
	}
	if writeErr != nil {
		// The client is gone; nothing more can be delivered.
		log.Debug().Err(writeErr).Msg("write response")
		return failure.NewFatality(failure.FatalConnection, failure.FatalFromCause(writeErr))
	}
	return nil
}

func (s *Server) fatal(err error, log zerolog.Logger) {
	fatality, ok := failure.AsFatality(err)
	if !ok {
		log.Error().Err(err).Msg("session failed")
		return
	}
	s.opts.Observer.ObserveFatality(fatality.Kind)
	event := log.Info()
	if fatality.Kind == failure.FatalConnection {
		event = log.Warn()
	}
	event.
		Str(logging.FieldFatalKind, fatality.Kind.String()).
		Str(logging.FieldCode, fatality.Err.Status().Code()).
		Str(logging.FieldReference, fatality.Err.Reference().String()).
		Msg("closing session after fatal failure")
}

func remoteAddr(c net.Conn) string {
	if addr := c.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
}
