package fsm

import (
	"github.com/cockroachdb/errors"

	"github.com/rbright/boltd/internal/message"
)

// ErrUnsupportedVersion is returned for protocol versions without a table.
var ErrUnsupportedVersion = errors.New("unsupported protocol version")

// Table is the transition table of one protocol version. Its initial,
// failed and interrupted states never change.
type Table struct {
	version       string
	separateLogon bool
}

// TableV4 authenticates with HELLO.
func TableV4() Table { return Table{version: "4.4"} }

// TableV51 authenticates with a separate LOGON and supports LOGOFF.
func TableV51() Table { return Table{version: "5.1", separateLogon: true} }

// TableFor resolves a configured protocol version.
func TableFor(version string) (Table, error) {
	switch version {
	case "4.4", "4":
		return TableV4(), nil
	case "5.1", "5":
		return TableV51(), nil
	default:
		return Table{}, errors.Wrapf(ErrUnsupportedVersion, "%q", version)
	}
}

func (t Table) Version() string     { return t.version }
func (t Table) Initial() State      { return StateNegotiation }
func (t Table) Failed() State       { return StateFailed }
func (t Table) Interrupted() State  { return StateInterrupted }
func (t Table) SeparateLogon() bool { return t.separateLogon }

// Transition runs the transition function of current for msg. ok is false
// when msg is not legal in current.
func (t Table) Transition(current State, ctx *Context, msg message.Request) (next State, ok bool, err error) {
	switch current {
	case StateNegotiation:
		switch m := msg.(type) {
		case message.Hello:
			return t.hello(ctx, m)
		case message.Reset:
			return t.reset(ctx)
		}
	case StateAuthentication:
		switch m := msg.(type) {
		case message.Logon:
			if t.separateLogon {
				return t.logon(ctx, m)
			}
		case message.Reset:
			return t.reset(ctx)
		}
	case StateReady:
		switch m := msg.(type) {
		case message.Run:
			return t.run(ctx, m, StateStreaming)
		case message.Begin:
			return t.begin(ctx, m)
		case message.Logoff:
			if t.separateLogon {
				return t.logoff(ctx)
			}
		case message.Reset:
			return t.reset(ctx)
		}
	case StateStreaming:
		switch m := msg.(type) {
		case message.Pull:
			return t.stream(ctx, m.QID, m.N, false, StateStreaming, StateReady)
		case message.Discard:
			return t.stream(ctx, m.QID, m.N, true, StateStreaming, StateReady)
		case message.Reset:
			return t.reset(ctx)
		}
	case StateTxReady:
		switch m := msg.(type) {
		case message.Run:
			return t.run(ctx, m, StateTxStreaming)
		case message.Commit:
			return t.commit(ctx)
		case message.Rollback:
			return t.rollback(ctx)
		case message.Reset:
			return t.reset(ctx)
		}
	case StateTxStreaming:
		switch m := msg.(type) {
		case message.Run:
			return t.run(ctx, m, StateTxStreaming)
		case message.Pull:
			return t.stream(ctx, m.QID, m.N, false, StateTxStreaming, StateTxReady)
		case message.Discard:
			return t.stream(ctx, m.QID, m.N, true, StateTxStreaming, StateTxReady)
		case message.Reset:
			return t.reset(ctx)
		}
	case StateFailed, StateInterrupted:
		if _, isReset := msg.(message.Reset); isReset {
			return t.reset(ctx)
		}
		ctx.ConnectionState().MarkIgnored()
		return current, true, nil
	}
	return current, false, nil
}

func (t Table) hello(ctx *Context, m message.Hello) (State, bool, error) {
	if !t.separateLogon {
		if err := ctx.authenticate(m.Auth); err != nil {
			return StateNegotiation, true, err
		}
	}
	ctx.helloDone = true
	ctx.metadata("server", ctx.SPI().Version())
	ctx.metadata("connection_id", ctx.ConnectionID())
	if t.separateLogon {
		return StateAuthentication, true, nil
	}
	return StateReady, true, nil
}

func (t Table) logon(ctx *Context, m message.Logon) (State, bool, error) {
	if err := ctx.authenticate(m.Auth); err != nil {
		return StateAuthentication, true, err
	}
	return StateReady, true, nil
}

func (t Table) logoff(ctx *Context) (State, bool, error) {
	if err := ctx.Processor().Logoff(); err != nil {
		return StateReady, true, errors.Wrap(err, "logoff")
	}
	ctx.logoff()
	return StateAuthentication, true, nil
}

func (t Table) begin(ctx *Context, m message.Begin) (State, bool, error) {
	if err := ctx.authorize(); err != nil {
		return StateReady, true, err
	}
	if err := ctx.Processor().Begin(ctx.Principal(), m.TxConfig); err != nil {
		return StateReady, true, err
	}
	return StateTxReady, true, nil
}

func (t Table) run(ctx *Context, m message.Run, next State) (State, bool, error) {
	if err := ctx.authorize(); err != nil {
		return next, true, err
	}
	if err := ctx.checkTermination(); err != nil {
		return next, true, err
	}

	start := ctx.Now()
	result, err := ctx.Processor().Run(ctx.Principal(), m)
	if err != nil {
		return next, true, err
	}
	ctx.metadata("fields", result.Fields)
	ctx.metadata("t_first", ctx.Now().Sub(start).Milliseconds())
	if next == StateTxStreaming {
		ctx.metadata("qid", result.QueryID)
	}
	return next, true, nil
}

func (t Table) stream(ctx *Context, qid, n int64, discard bool, more, done State) (State, bool, error) {
	if err := ctx.checkTermination(); err != nil {
		return done, true, err
	}

	start := ctx.Now()
	result, err := ctx.Processor().Stream(qid, n, discard, ctx.ConnectionState())
	if err != nil {
		return done, true, err
	}
	if result.HasMore {
		ctx.metadata("has_more", true)
		return more, true, nil
	}

	ctx.metadata("t_last", ctx.Now().Sub(start).Milliseconds())
	if result.Type != "" {
		ctx.metadata("type", result.Type)
	}
	if result.Database != "" {
		ctx.metadata("db", result.Database)
	}
	if result.Bookmark != "" {
		ctx.metadata("bookmark", result.Bookmark)
	}
	if result.OpenResults > 0 {
		return more, true, nil
	}
	return done, true, nil
}

func (t Table) commit(ctx *Context) (State, bool, error) {
	if err := ctx.checkTermination(); err != nil {
		return StateReady, true, err
	}
	bookmark, err := ctx.Processor().Commit()
	if err != nil {
		return StateReady, true, err
	}
	ctx.metadata("bookmark", bookmark)
	return StateReady, true, nil
}

func (t Table) rollback(ctx *Context) (State, bool, error) {
	if err := ctx.Processor().Rollback(); err != nil {
		return StateReady, true, err
	}
	return StateReady, true, nil
}

func (t Table) reset(ctx *Context) (State, bool, error) {
	done, err := ctx.Reset()
	if err != nil {
		return StateFailed, true, err
	}
	if !done {
		ctx.ConnectionState().MarkIgnored()
		return StateInterrupted, true, nil
	}
	return ctx.resetTarget(), true, nil
}
