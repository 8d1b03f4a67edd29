package fsm

import (
	"sync/atomic"
	"time"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/message"
)

// Context is handed to every transition function.
type Context struct {
	machine   *Machine
	auth      atomic.Pointer[AuthResult]
	helloDone bool
}

func (c *Context) ConnectionID() string              { return c.machine.id }
func (c *Context) Now() time.Time                    { return c.machine.clock() }
func (c *Context) SPI() SPI                          { return c.machine.spi }
func (c *Context) Processor() Processor              { return c.machine.processor }
func (c *Context) ConnectionState() *ConnectionState { return c.machine.connState }

// HandleFailure forwards to the owning machine.
func (c *Context) HandleFailure(cause error, fatal bool) error {
	return c.machine.HandleFailure(cause, fatal)
}

// Reset forwards to the owning machine.
func (c *Context) Reset() (bool, error) {
	return c.machine.Reset()
}

// ValidateTransaction forwards to the owning machine.
func (c *Context) ValidateTransaction() error {
	return c.machine.ValidateTransaction()
}

// Principal returns the authenticated user, or "" before authentication.
func (c *Context) Principal() string {
	if a := c.auth.Load(); a != nil {
		return a.Principal
	}
	return ""
}

func (c *Context) metadata(key string, value any) {
	c.machine.connState.OnMetadata(key, value)
}

func (c *Context) authenticate(token message.AuthToken) error {
	result, err := c.machine.processor.Authenticate(token)
	if err != nil {
		return c.HandleFailure(err, true)
	}
	c.auth.Store(&result)
	if result.CredentialsExpired {
		c.metadata("credentials_expired", true)
	}
	return nil
}

func (c *Context) logoff() {
	c.auth.Store(nil)
}

// authorize checks that the principal may still run work.
func (c *Context) authorize() error {
	a := c.auth.Load()
	switch {
	case a == nil:
		return failure.FatalFrom(failure.StatusUnauthorized, "The client is not authenticated.")
	case a.CredentialsExpired:
		return failure.From(failure.StatusCredentialsExpired,
			"The credentials you provided were valid, but must be changed before you can use this instance.")
	case !a.ExpiresAt.IsZero() && !c.Now().Before(a.ExpiresAt):
		return failure.MarkAuthExpired(failure.From(failure.StatusAuthorizationExpired,
			"The client's authorization info has expired."))
	}
	return nil
}

// checkTermination surfaces a termination notice of the attached work.
func (c *Context) checkTermination() error {
	if err := c.ValidateTransaction(); err != nil {
		return err
	}
	if n := c.machine.connState.TakeTerminationNotice(); n != nil {
		return failure.From(n.Status, n.Reason)
	}
	return nil
}

// resetTarget is where a successful RESET lands.
func (c *Context) resetTarget() State {
	switch {
	case c.auth.Load() != nil:
		return StateReady
	case c.helloDone && c.machine.table.separateLogon:
		return StateAuthentication
	default:
		return StateNegotiation
	}
}
