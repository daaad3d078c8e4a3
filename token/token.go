// Package token defines the credential record at the center of Harbormail
// authentication, and the codec that maps it to and from an opaque wire
// string.
//
// A Token binds an account to a single usage (ordinary auth, password reset,
// a two-factor step) and an expiry instant. The wire form is an HMAC-signed,
// hex-encoded key/value blob carrying a key-version marker, safe to place in
// a cookie value, a URL query parameter or a protocol header attribute.
//
// Whether a token is currently live on the server side (registered, not
// revoked) is tracked separately by the ledger package; this package only
// carries the registration id that correlates the two.
package token

import (
	"fmt"
	"time"
)

// Default lifetimes applied at mint time when neither the caller nor the
// account supplies one.
const (
	DefaultAuthLifetime                = 12 * time.Hour
	DefaultTwoFactorAuthLifetime       = time.Hour
	DefaultTwoFactorEnablementLifetime = 10 * time.Minute
)

// Usage is the single declared purpose a token was minted for. Validation
// must match it exactly; a token minted for one usage never validates for
// another.
type Usage string

const (
	UsageAuth                Usage = "a"
	UsageTwoFactorAuth       Usage = "2fa"
	UsageEnableTwoFactorAuth Usage = "e2fa"
	UsageResetPassword       Usage = "rp"
)

// ParseUsage maps a wire code to a Usage. The empty code means ordinary
// auth, matching tokens minted before usage tracking.
func ParseUsage(code string) (Usage, error) {
	switch Usage(code) {
	case "":
		return UsageAuth, nil
	case UsageAuth, UsageTwoFactorAuth, UsageEnableTwoFactorAuth, UsageResetPassword:
		return Usage(code), nil
	}
	return "", fmt.Errorf("token: unknown usage code %q", code)
}

// Type distinguishes the issuance channel of a token. It affects
// serialization only, never validity.
type Type string

const (
	TypeAuth Type = "auth" // opaque codec token, cookie/header carried
	TypeJWT  Type = "jwt"  // JWT channel
)

// Token is an authenticated credential record. It is immutable once
// constructed; its live/revoked state lives in the registration ledger,
// keyed by RegistrationID.
type Token struct {
	AccountID string

	// AdminAccountID is set when the token was minted via delegated auth:
	// an admin account acting on behalf of AccountID.
	AdminAccountID string

	IsAdmin          bool
	IsDelegatedAdmin bool

	Usage Usage
	Type  Type

	Expires time.Time

	// Validity is the account token-validity generation captured at mint
	// time, or -1 when unknown.
	Validity int

	// RegistrationID correlates this token instance to a ledger entry,
	// enabling server-side revocation independent of expiry.
	RegistrationID string

	// Bootstrap marks an app-bootstrap token for which a missing account is
	// tolerated during validation.
	Bootstrap bool

	// Encoded is the wire form this token was decoded from or encoded to.
	// Derived, not part of the credential identity.
	Encoded string
}

// IsDelegatedAuth reports whether this token was minted by an admin acting
// on behalf of the target account.
func (t *Token) IsDelegatedAuth() bool {
	return t.AdminAccountID != ""
}

// ExpiredAt reports whether the token is invalid at the given instant.
func (t *Token) ExpiredAt(now time.Time) bool {
	return now.After(t.Expires)
}
