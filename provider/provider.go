// Package provider implements pluggable auth-token providers and the
// ordered chain that resolves tokens across them.
//
// A Provider knows how to extract a token from one or more credential
// carriers (an HTTP request, a protocol header context, an explicit encoded
// string) and how to mint new tokens for an account. Providers are held in a
// Registry owned by the composition root; an ordered, configuration-driven
// subset is enabled at a time and tried in sequence for every resolution.
//
// # Resolution signals
//
// A resolution either returns a usable token, or one of three failures the
// chain pattern-matches on:
//
//   - ErrNoCredential: the provider had nothing to offer; the chain moves on.
//   - ErrNotSupported: the provider does not implement this operation; the
//     chain moves on.
//   - *token.MalformedTokenError: the provider found data but could not
//     parse or verify it; the chain remembers it and keeps trying, raising
//     the last one remembered only if no provider succeeds.
//
// A successful resolution never returns a nil token.
package provider

import (
	"errors"
	"net/http"
	"time"

	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/token"
)

// Ignorable resolution outcomes. A provider signalling one of these simply
// has nothing to say about the request; it is not a failure.
var (
	ErrNoCredential = errors.New("provider: no credential data")
	ErrNotSupported = errors.New("provider: operation not supported")
)

// HeaderContext is the auth-bearing slice of a structured protocol header
// block, extracted by the transport layer before dispatch.
type HeaderContext struct {
	// AuthToken is the encoded opaque token from the auth token element.
	AuthToken string

	// JWT is the compact JWT from the jwt element, with JWTSalt the
	// per-session salt the token must be bound to.
	JWT     string
	JWTSalt string
}

// MintOptions control token construction. The zero value mints an ordinary
// auth token with the provider's lifetime defaults.
type MintOptions struct {
	IsAdmin bool

	// Usage defaults to token.UsageAuth.
	Usage token.Usage

	// Type selects the issuance channel; providers decline types they do
	// not produce. Defaults to token.TypeAuth.
	Type token.Type

	// Expires overrides lifetime resolution when non-zero.
	Expires time.Time

	// DelegatingAdmin marks the token as delegated auth: the given admin
	// acting on behalf of the target account.
	DelegatingAdmin *directory.Account
}

// Provider is the capability interface a token provider variant implements.
// Embed Unimplemented to decline operations the variant does not support.
type Provider interface {
	Name() string

	// FromRequest extracts a token from a cookie/header-bearing request.
	// Admin requests read only the admin credential carrier.
	FromRequest(r *http.Request, isAdminReq bool) (*token.Token, error)

	// FromContext extracts a token from a protocol header context.
	FromContext(hctx *HeaderContext) (*token.Token, error)

	// FromEncoded decodes an explicitly supplied encoded token, for
	// non-cookie channels such as a query parameter.
	FromEncoded(encoded string) (*token.Token, error)

	// Mint constructs and registers a brand-new token for the account.
	// Never returns a nil token without an error.
	Mint(acct *directory.Account, opts MintOptions) (*token.Token, error)

	// Capability probes consulted by the chain, not token resolution.
	AllowsBasicAuth(r *http.Request) bool
	AllowsURLKeyAuth(r *http.Request) bool
}

// Unimplemented declines every provider operation. Variants embed it and
// override only the carriers they understand.
type Unimplemented struct{}

func (Unimplemented) FromRequest(*http.Request, bool) (*token.Token, error) {
	return nil, ErrNotSupported
}

func (Unimplemented) FromContext(*HeaderContext) (*token.Token, error) {
	return nil, ErrNotSupported
}

func (Unimplemented) FromEncoded(string) (*token.Token, error) {
	return nil, ErrNotSupported
}

func (Unimplemented) Mint(*directory.Account, MintOptions) (*token.Token, error) {
	return nil, ErrNotSupported
}

func (Unimplemented) AllowsBasicAuth(*http.Request) bool { return true }

func (Unimplemented) AllowsURLKeyAuth(*http.Request) bool { return false }

// Lifetimes are the server-wide lifetime defaults a provider applies when
// neither the mint options nor the account carry one. Zero fields fall back
// to the token package constants.
type Lifetimes struct {
	Auth                time.Duration
	Admin               time.Duration
	TwoFactor           time.Duration
	TwoFactorEnablement time.Duration
}

// forMint resolves the lifetime for a mint, preferring the account's
// attribute for the usage, then the server default, then the constant.
func (l Lifetimes) forMint(acct *directory.Account, usage token.Usage, isAdmin bool) time.Duration {
	pick := func(acctVal, serverVal, fallback time.Duration) time.Duration {
		if acctVal > 0 {
			return acctVal
		}
		if serverVal > 0 {
			return serverVal
		}
		return fallback
	}

	switch usage {
	case token.UsageTwoFactorAuth:
		return pick(acct.TwoFactorAuthTokenLifetime, l.TwoFactor, token.DefaultTwoFactorAuthLifetime)
	case token.UsageEnableTwoFactorAuth:
		return pick(acct.TwoFactorEnablementTokenLifetime, l.TwoFactorEnablement, token.DefaultTwoFactorEnablementLifetime)
	}
	if isAdmin {
		return pick(acct.AdminAuthTokenLifetime, l.Admin, token.DefaultAuthLifetime)
	}
	return pick(acct.AuthTokenLifetime, l.Auth, token.DefaultAuthLifetime)
}

// ignorable reports whether a resolution error means "nothing to offer"
// rather than "found data but could not use it".
func ignorable(err error) bool {
	return errors.Is(err, ErrNoCredential) || errors.Is(err, ErrNotSupported)
}
