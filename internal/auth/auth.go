// Package auth verifies client credentials against configured users.
package auth

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/rbright/boltd/internal/failure"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/message"
)

const (
	SchemeBasic = "basic"
	SchemeNone  = "none"
)

const unauthorizedMessage = "The client is unauthorized due to authentication failure."

// User is one configured account.
type User struct {
	Name               string
	PasswordHash       string
	CredentialsExpired bool
}

// Options configures a Store.
type Options struct {
	Users []User
	// Disabled accepts every client, including the "none" scheme.
	Disabled bool
	// Lifetime bounds how long an authorization stays valid. Zero never expires.
	Lifetime time.Duration
	Clock    func() time.Time
}

// Store authenticates against an in-memory user table.
type Store struct {
	disabled bool
	lifetime time.Duration
	clock    func() time.Time

	mu    sync.RWMutex
	users map[string]User
}

// NewStore builds a store from opts.
func NewStore(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	users := make(map[string]User, len(opts.Users))
	for _, u := range opts.Users {
		users[u.Name] = u
	}
	return &Store{
		disabled: opts.Disabled,
		lifetime: opts.Lifetime,
		clock:    opts.Clock,
		users:    users,
	}
}

// Authenticate checks token and returns the principal it proves.
func (s *Store) Authenticate(token message.AuthToken) (fsm.AuthResult, error) {
	if s.disabled {
		return fsm.AuthResult{Principal: token.Principal, ExpiresAt: s.expiry()}, nil
	}
	if token.Scheme != SchemeBasic {
		return fsm.AuthResult{}, rejected(errors.Newf("unsupported authentication scheme %q", token.Scheme))
	}

	s.mu.RLock()
	user, ok := s.users[token.Principal]
	s.mu.RUnlock()
	if !ok {
		return fsm.AuthResult{}, rejected(errors.Newf("unknown user %q", token.Principal))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(token.Credentials)); err != nil {
		return fsm.AuthResult{}, rejected(errors.Wrapf(err, "user %q", token.Principal))
	}

	return fsm.AuthResult{
		Principal:          user.Name,
		CredentialsExpired: user.CredentialsExpired,
		ExpiresAt:          s.expiry(),
	}, nil
}

// Users returns the configured user names.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	return names
}

func (s *Store) expiry() time.Time {
	if s.lifetime <= 0 {
		return time.Time{}
	}
	return s.clock().Add(s.lifetime)
}

// rejected hides the detail from the client while keeping it in the chain.
func rejected(cause error) error {
	err := failure.From(failure.StatusUnauthorized, unauthorizedMessage)
	return failure.MarkAuthExpired(errors.WithSecondaryError(err, cause))
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}
