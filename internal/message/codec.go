package message

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrUnknownSignature is returned for request types this server does not speak.
var ErrUnknownSignature = errors.New("unknown message signature")

type authJSON struct {
	Scheme      string `json:"scheme"`
	Principal   string `json:"principal,omitempty"`
	Credentials string `json:"credentials,omitempty"`
}

type envelope struct {
	Type       Signature         `json:"type"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Auth       *authJSON         `json:"auth,omitempty"`
	Routing    map[string]string `json:"routing,omitempty"`
	Query      string            `json:"query,omitempty"`
	Params     map[string]any    `json:"params,omitempty"`
	Bookmarks  []string          `json:"bookmarks,omitempty"`
	TxTimeout  int64             `json:"tx_timeout,omitempty"`
	TxMetadata map[string]any    `json:"tx_metadata,omitempty"`
	Database   string            `json:"db,omitempty"`
	Mode       AccessMode        `json:"mode,omitempty"`
	N          *int64            `json:"n,omitempty"`
	QID        *int64            `json:"qid,omitempty"`
}

// Decode parses one JSON request line.
func Decode(line []byte) (Request, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decode request")
	}

	switch Signature(strings.ToUpper(string(env.Type))) {
	case SignatureHello:
		return Hello{UserAgent: env.UserAgent, Auth: env.authToken(), RoutingContext: env.Routing}, nil
	case SignatureLogon:
		return Logon{Auth: env.authToken()}, nil
	case SignatureLogoff:
		return Logoff{}, nil
	case SignatureBegin:
		return Begin{TxConfig: env.txConfig()}, nil
	case SignatureRun:
		if strings.TrimSpace(env.Query) == "" {
			return nil, errors.New("decode request: RUN requires a query")
		}
		return Run{Query: env.Query, Params: normalizeParams(env.Params), TxConfig: env.txConfig()}, nil
	case SignaturePull:
		return Pull{N: valueOr(env.N, StreamAll), QID: valueOr(env.QID, LastQuery)}, nil
	case SignatureDiscard:
		return Discard{N: valueOr(env.N, StreamAll), QID: valueOr(env.QID, LastQuery)}, nil
	case SignatureCommit:
		return Commit{}, nil
	case SignatureRollback:
		return Rollback{}, nil
	case SignatureReset:
		return Reset{}, nil
	case SignatureGoodbye:
		return Goodbye{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownSignature, "decode request: %q", env.Type)
	}
}

// Encode renders a request as a single JSON line, without the newline.
func Encode(req Request) ([]byte, error) {
	env := envelope{Type: req.Signature()}
	switch m := req.(type) {
	case Hello:
		env.UserAgent = m.UserAgent
		env.Auth = fromToken(m.Auth)
		env.Routing = m.RoutingContext
	case Logon:
		env.Auth = fromToken(m.Auth)
	case Begin:
		env.applyTxConfig(m.TxConfig)
	case Run:
		env.Query = m.Query
		env.Params = m.Params
		env.applyTxConfig(m.TxConfig)
	case Pull:
		env.N, env.QID = &m.N, &m.QID
	case Discard:
		env.N, env.QID = &m.N, &m.QID
	case Logoff, Commit, Rollback, Reset, Goodbye:
	default:
		return nil, errors.Wrapf(ErrUnknownSignature, "encode request: %T", req)
	}
	return json.Marshal(env)
}

func (e envelope) authToken() AuthToken {
	if e.Auth == nil {
		return AuthToken{Scheme: "none"}
	}
	return AuthToken{Scheme: e.Auth.Scheme, Principal: e.Auth.Principal, Credentials: e.Auth.Credentials}
}

func fromToken(t AuthToken) *authJSON {
	if t.Scheme == "" {
		return nil
	}
	return &authJSON{Scheme: t.Scheme, Principal: t.Principal, Credentials: t.Credentials}
}

func (e envelope) txConfig() TxConfig {
	return TxConfig{
		Bookmarks: e.Bookmarks,
		Timeout:   time.Duration(e.TxTimeout) * time.Millisecond,
		Metadata:  e.TxMetadata,
		Database:  e.Database,
		Mode:      e.Mode,
	}
}

func (e *envelope) applyTxConfig(cfg TxConfig) {
	e.Bookmarks = cfg.Bookmarks
	e.TxTimeout = cfg.Timeout.Milliseconds()
	e.TxMetadata = cfg.Metadata
	e.Database = cfg.Database
	e.Mode = cfg.Mode
}

func valueOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}

// normalizeParams turns json.Number values into int64 or float64.
func normalizeParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch typed := v.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		return normalizeParams(typed)
	default:
		return v
	}
}
