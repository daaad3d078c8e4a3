package provider

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/ledger"
	"github.com/harbormail/authkit/token"
	"github.com/thejerf/abtime"
)

// JWTProviderName enables the JWT channel in AUTH_PROVIDERS.
const JWTProviderName = "jwt"

const bearerPrefix = "Bearer "

// jwtClaims is the claim set carried by harbormail-issued JWTs. The jti is
// the ledger registration id, so JWT revocation rides the same ledger as
// opaque tokens.
type jwtClaims struct {
	jwt.RegisteredClaims

	Usage          string `json:"u,omitempty"`
	Admin          bool   `json:"adm,omitempty"`
	DelegatedAdmin bool   `json:"dlg,omitempty"`
	AdminAccountID string `json:"aid,omitempty"`
	Validity       *int   `json:"vv,omitempty"`
	Salt           string `json:"salt,omitempty"`
}

// JWTProvider resolves and mints tokens on the JWT channel: Authorization
// bearer headers, the jwt element of a protocol header context, or explicit
// compact strings bound to a per-session salt.
type JWTProvider struct {
	Unimplemented

	secret []byte
	ledger ledger.Ledger
	clock  abtime.AbstractTime

	lifetimes Lifetimes
}

func NewJWTProvider(secret []byte, led ledger.Ledger, clock abtime.AbstractTime, lifetimes Lifetimes) *JWTProvider {
	return &JWTProvider{
		secret:    secret,
		ledger:    led,
		clock:     clock,
		lifetimes: lifetimes,
	}
}

func (p *JWTProvider) Name() string { return JWTProviderName }

func (p *JWTProvider) FromRequest(r *http.Request, isAdminReq bool) (*token.Token, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return nil, ErrNoCredential
	}
	return p.parse(auth[len(bearerPrefix):], "")
}

func (p *JWTProvider) FromContext(hctx *HeaderContext) (*token.Token, error) {
	if hctx == nil || hctx.JWT == "" {
		return nil, ErrNoCredential
	}
	return p.parse(hctx.JWT, hctx.JWTSalt)
}

func (p *JWTProvider) FromEncoded(encoded string) (*token.Token, error) {
	if encoded == "" {
		return nil, ErrNoCredential
	}
	return p.parse(encoded, "")
}

// parse verifies signature and structure only. Expiry is the validator's
// decision, so claim-time validation is disabled here.
func (p *JWTProvider) parse(compact, salt string) (*token.Token, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(compact, &claims,
		func(t *jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, &token.MalformedTokenError{Reason: "jwt verification failed", Err: err}
	}

	if claims.Subject == "" {
		return nil, &token.MalformedTokenError{Reason: "jwt missing subject"}
	}
	if claims.ExpiresAt == nil {
		return nil, &token.MalformedTokenError{Reason: "jwt missing expiry"}
	}
	if claims.Salt != "" && claims.Salt != salt {
		return nil, &token.MalformedTokenError{Reason: "jwt salt mismatch"}
	}

	usage, err := token.ParseUsage(claims.Usage)
	if err != nil {
		return nil, &token.MalformedTokenError{Reason: "jwt invalid usage", Err: err}
	}

	validity := -1
	if claims.Validity != nil {
		validity = *claims.Validity
	}

	return &token.Token{
		AccountID:        claims.Subject,
		AdminAccountID:   claims.AdminAccountID,
		IsAdmin:          claims.Admin,
		IsDelegatedAdmin: claims.DelegatedAdmin,
		Usage:            usage,
		Type:             token.TypeJWT,
		Expires:          claims.ExpiresAt.Time,
		Validity:         validity,
		RegistrationID:   claims.ID,
		Encoded:          compact,
	}, nil
}

// Mint signs a new JWT for the account and registers its jti in the ledger.
// Declines mints that do not ask for the JWT channel.
func (p *JWTProvider) Mint(acct *directory.Account, opts MintOptions) (*token.Token, error) {
	if acct == nil || opts.Type != token.TypeJWT {
		return nil, ErrNotSupported
	}

	usage := opts.Usage
	if usage == "" {
		usage = token.UsageAuth
	}

	now := p.clock.Now()
	expires := opts.Expires
	if expires.IsZero() {
		expires = now.Add(p.lifetimes.forMint(acct, usage, opts.IsAdmin))
	}

	validity := acct.TokenValidity
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Usage:    string(usage),
		Admin:    opts.IsAdmin && acct.IsAdmin,
		Validity: &validity,
	}
	if opts.IsAdmin && acct.IsDelegatedAdmin {
		claims.DelegatedAdmin = true
	}
	if opts.DelegatingAdmin != nil {
		claims.AdminAccountID = opts.DelegatingAdmin.ID
	}

	compact, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, err
	}

	t := &token.Token{
		AccountID:        acct.ID,
		AdminAccountID:   claims.AdminAccountID,
		IsAdmin:          claims.Admin,
		IsDelegatedAdmin: claims.DelegatedAdmin,
		Usage:            usage,
		Type:             token.TypeJWT,
		Expires:          expires,
		Validity:         validity,
		RegistrationID:   claims.ID,
		Encoded:          compact,
	}

	if err := p.ledger.Register(t.RegistrationID, t.Expires); err != nil {
		return nil, err
	}
	return t, nil
}

// AllowsBasicAuth is declined on the JWT channel: bearer-token clients never
// fall back to basic auth.
func (p *JWTProvider) AllowsBasicAuth(*http.Request) bool { return false }
