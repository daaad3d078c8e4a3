// Package directory defines the account lookup boundary consumed by the auth
// core.
//
// The directory is an external collaborator: the provisioning subsystem that
// knows how to resolve an account identifier into an account record. The auth
// core only depends on the Directory interface; MemDirectory is an in-memory
// implementation used for composition roots without a provisioning backend
// and for tests.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no account matches.
var ErrNotFound = errors.New("directory: account not found")

// Status is the provisioning status of an account. Only active accounts may
// authenticate through the plain (non-delegated) path.
type Status string

const (
	StatusActive      Status = "active"
	StatusMaintenance Status = "maintenance"
	StatusLocked      Status = "locked"
	StatusClosed      Status = "closed"
	StatusPending     Status = "pending"
)

// Directory resolves account identifiers to account records.
type Directory interface {
	AccountByID(ctx context.Context, id string) (*Account, error)
}

// Account is a directory account record. Lifetime fields are optional
// per-account overrides; zero means the server default applies.
type Account struct {
	ID   string
	Name string

	Status Status

	IsAdmin          bool
	IsDelegatedAdmin bool

	// TokenValidity is the account's current token-validity generation.
	// Bumped on password change to invalidate outstanding tokens.
	TokenValidity int

	PasswordHash string

	AuthTokenLifetime                time.Duration
	AdminAuthTokenLifetime           time.Duration
	TwoFactorAuthTokenLifetime       time.Duration
	TwoFactorEnablementTokenLifetime time.Duration
}

// IsAdequateAdmin reports whether the account carries enough administrative
// privilege to delegate authentication for another account.
func (a *Account) IsAdequateAdmin() bool {
	return a.IsAdmin || a.IsDelegatedAdmin
}

// CheckTokenValidity reports whether a token minted with the given validity
// generation is still acceptable for this account. Tokens minted before
// validity tracking (generation -1) always pass.
func (a *Account) CheckTokenValidity(generation int) bool {
	return generation == -1 || generation == a.TokenValidity
}
