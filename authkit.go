// Package authkit is the authentication-token core of the Harbormail
// collaboration server.
//
// It resolves opaque credential tokens carried in cookies, headers,
// protocol header contexts or explicit encoded strings into an
// authenticated account, through an ordered chain of pluggable providers,
// with delegation, expiry, revocation and usage-scoping semantics.
//
// # Subpackages
//
//   - token: the credential record, the signed wire codec and key ring
//   - ledger: server-side registration (revocation) tracking
//   - provider: provider variants and the ordered resolution chain
//   - validate: the token validity state machine
//   - directory: the account lookup boundary
//   - api: HTTP surface wiring the chain and validator together
//
// # Quick Start
//
//	keys, _ := token.NewKeyRing(token.Key{Version: "1", Secret: secret})
//	auth := authkit.NewMemoryAuth(keys, provider.Lifetimes{}, dir, nil)
//
//	// mint after primary authentication
//	at, err := auth.Registry.MintToken(acct, provider.MintOptions{})
//
//	// authenticate a request
//	at, err = auth.Registry.TokenFromRequest(req, false)
//	acct, err := auth.Validator.Validate(ctx, at, token.UsageAuth, true)
package authkit

import (
	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/ledger"
	"github.com/harbormail/authkit/provider"
	"github.com/harbormail/authkit/token"
	"github.com/harbormail/authkit/validate"
	"github.com/thejerf/abtime"
	"go.uber.org/zap"
)

// Token is the credential record resolved and validated by this module.
type Token = token.Token

// Account is a directory account record.
type Account = directory.Account

// Auth bundles a ready-to-use provider chain and validator.
type Auth struct {
	Registry  *provider.Registry
	Validator *validate.Validator
	Ledger    ledger.Ledger
}

// NewMemoryAuth wires the default provider over an in-memory ledger: the
// single-process composition used by tests and embedded deployments.
func NewMemoryAuth(keys *token.KeyRing, lifetimes provider.Lifetimes, dir directory.Directory, log *zap.Logger) *Auth {
	clock := abtime.NewRealTime()
	led := ledger.NewMemory(clock, 0)
	codec := token.NewCodec(keys)

	registry := provider.NewRegistry(log)
	registry.Register(provider.NewHarborProvider(codec, led, clock, lifetimes, 0))
	registry.Refresh(nil)

	return &Auth{
		Registry:  registry,
		Validator: validate.NewValidator(dir, led, clock, log),
		Ledger:    led,
	}
}
