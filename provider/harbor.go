package provider

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/ledger"
	"github.com/harbormail/authkit/token"
	"github.com/thejerf/abtime"
)

// DefaultProviderName is the provider the chain falls back to when the
// configuration enables none.
const DefaultProviderName = "harbor"

// Credential carriers read by the harbor provider. One cookie per audience;
// admin requests read only the admin cookie.
const (
	CookieName      = "harbormail_token"
	AdminCookieName = "harbormail_admin_token"
	TokenHeaderName = "X-Harbormail-Token"
)

// HarborProvider is the built-in provider: opaque codec tokens carried in
// audience cookies, the token header, protocol header contexts, or explicit
// encoded strings.
type HarborProvider struct {
	Unimplemented

	codec  *token.Codec
	cache  *token.DecodeCache
	ledger ledger.Ledger
	clock  abtime.AbstractTime

	lifetimes Lifetimes
}

// NewHarborProvider builds the default provider. cacheSize bounds the
// decoded-token cache; zero means the package default.
func NewHarborProvider(codec *token.Codec, led ledger.Ledger, clock abtime.AbstractTime,
	lifetimes Lifetimes, cacheSize int) *HarborProvider {
	return &HarborProvider{
		codec:     codec,
		cache:     token.NewDecodeCache(codec, clock, cacheSize),
		ledger:    led,
		clock:     clock,
		lifetimes: lifetimes,
	}
}

func (p *HarborProvider) Name() string { return DefaultProviderName }

func (p *HarborProvider) FromRequest(r *http.Request, isAdminReq bool) (*token.Token, error) {
	name := CookieName
	if isAdminReq {
		name = AdminCookieName
	}
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return p.cache.Decode(c.Value)
	}
	if v := r.Header.Get(TokenHeaderName); v != "" {
		return p.cache.Decode(v)
	}
	return nil, ErrNoCredential
}

func (p *HarborProvider) FromContext(hctx *HeaderContext) (*token.Token, error) {
	if hctx == nil || hctx.AuthToken == "" {
		return nil, ErrNoCredential
	}
	return p.cache.Decode(hctx.AuthToken)
}

func (p *HarborProvider) FromEncoded(encoded string) (*token.Token, error) {
	if encoded == "" {
		return nil, ErrNoCredential
	}
	return p.cache.Decode(encoded)
}

// Mint constructs an opaque token for the account, resolves its lifetime
// from the options, the account and the server defaults, registers it in
// the ledger, and encodes it.
func (p *HarborProvider) Mint(acct *directory.Account, opts MintOptions) (*token.Token, error) {
	if acct == nil {
		return nil, ErrNotSupported
	}
	if opts.Type != "" && opts.Type != token.TypeAuth {
		return nil, ErrNotSupported
	}

	usage := opts.Usage
	if usage == "" {
		usage = token.UsageAuth
	}

	expires := opts.Expires
	if expires.IsZero() {
		expires = p.clock.Now().Add(p.lifetimes.forMint(acct, usage, opts.IsAdmin))
	}

	t := &token.Token{
		AccountID:        acct.ID,
		IsAdmin:          opts.IsAdmin && acct.IsAdmin,
		IsDelegatedAdmin: opts.IsAdmin && acct.IsDelegatedAdmin,
		Usage:            usage,
		Type:             token.TypeAuth,
		Expires:          expires,
		Validity:         acct.TokenValidity,
		RegistrationID:   uuid.New().String(),
	}
	if opts.DelegatingAdmin != nil {
		t.AdminAccountID = opts.DelegatingAdmin.ID
	}

	encoded, err := p.codec.Encode(t)
	if err != nil {
		return nil, err
	}
	t.Encoded = encoded

	if err := p.ledger.Register(t.RegistrationID, t.Expires); err != nil {
		return nil, err
	}
	return t, nil
}
