// Package message defines the decoded client requests a session processes.
package message

import "time"

// Signature names a request type on the wire.
type Signature string

const (
	SignatureHello    Signature = "HELLO"
	SignatureLogon    Signature = "LOGON"
	SignatureLogoff   Signature = "LOGOFF"
	SignatureBegin    Signature = "BEGIN"
	SignatureRun      Signature = "RUN"
	SignaturePull     Signature = "PULL"
	SignatureDiscard  Signature = "DISCARD"
	SignatureCommit   Signature = "COMMIT"
	SignatureRollback Signature = "ROLLBACK"
	SignatureReset    Signature = "RESET"
	SignatureGoodbye  Signature = "GOODBYE"
)

// Request is one decoded client message.
type Request interface {
	Signature() Signature
	// SafeToProcessInAnyState reports whether the message bypasses the
	// pending-failure gate.
	SafeToProcessInAnyState() bool
}

// AccessMode is the routing mode requested for a transaction.
type AccessMode string

const (
	AccessWrite AccessMode = "w"
	AccessRead  AccessMode = "r"
)

// AuthToken carries client credentials.
type AuthToken struct {
	Scheme      string
	Principal   string
	Credentials string
}

// Redacted returns a copy without credentials, suitable for logs.
func (a AuthToken) Redacted() AuthToken {
	a.Credentials = ""
	return a
}

// TxConfig holds the transaction options shared by BEGIN and autocommit RUN.
type TxConfig struct {
	Bookmarks []string
	Timeout   time.Duration
	Metadata  map[string]any
	Database  string
	Mode      AccessMode
}

// StreamAll requests every remaining record.
const StreamAll int64 = -1

// LastQuery addresses the most recent result in a transaction.
const LastQuery int64 = -1

type Hello struct {
	UserAgent      string
	Auth           AuthToken
	RoutingContext map[string]string
}

type Logon struct {
	Auth AuthToken
}

type Logoff struct{}

type Begin struct {
	TxConfig
}

type Run struct {
	Query  string
	Params map[string]any
	TxConfig
}

type Pull struct {
	N   int64
	QID int64
}

type Discard struct {
	N   int64
	QID int64
}

type Commit struct{}

type Rollback struct{}

type Reset struct{}

type Goodbye struct{}

func (Hello) Signature() Signature    { return SignatureHello }
func (Logon) Signature() Signature    { return SignatureLogon }
func (Logoff) Signature() Signature   { return SignatureLogoff }
func (Begin) Signature() Signature    { return SignatureBegin }
func (Run) Signature() Signature      { return SignatureRun }
func (Pull) Signature() Signature     { return SignaturePull }
func (Discard) Signature() Signature  { return SignatureDiscard }
func (Commit) Signature() Signature   { return SignatureCommit }
func (Rollback) Signature() Signature { return SignatureRollback }
func (Reset) Signature() Signature    { return SignatureReset }
func (Goodbye) Signature() Signature  { return SignatureGoodbye }

func (Hello) SafeToProcessInAnyState() bool    { return false }
func (Logon) SafeToProcessInAnyState() bool    { return false }
func (Logoff) SafeToProcessInAnyState() bool   { return false }
func (Begin) SafeToProcessInAnyState() bool    { return false }
func (Run) SafeToProcessInAnyState() bool      { return false }
func (Pull) SafeToProcessInAnyState() bool     { return false }
func (Discard) SafeToProcessInAnyState() bool  { return false }
func (Commit) SafeToProcessInAnyState() bool   { return false }
func (Rollback) SafeToProcessInAnyState() bool { return false }
func (Reset) SafeToProcessInAnyState() bool    { return true }
func (Goodbye) SafeToProcessInAnyState() bool  { return false }
