package provider

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/token"
)

// stubProvider resolves every carrier through a single canned outcome.
type stubProvider struct {
	Unimplemented
	name    string
	tok     *token.Token
	err     error
	calls   int
	noBasic bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) FromRequest(*http.Request, bool) (*token.Token, error) {
	s.calls++
	return s.tok, s.err
}

func (s *stubProvider) FromEncoded(string) (*token.Token, error) {
	s.calls++
	return s.tok, s.err
}

func (s *stubProvider) Mint(*directory.Account, MintOptions) (*token.Token, error) {
	s.calls++
	return s.tok, s.err
}

func (s *stubProvider) AllowsBasicAuth(*http.Request) bool { return !s.noBasic }

func testRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/", nil)
}

func testToken(acct string) *token.Token {
	return &token.Token{AccountID: acct, Usage: token.UsageAuth, Expires: time.Now().Add(time.Hour), Validity: -1}
}

func newTestRegistry(providers ...Provider) *Registry {
	r := NewRegistry(nil)
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		r.Register(p)
		names = append(names, p.Name())
	}
	r.Refresh(names)
	return r
}

func TestChainShortCircuitsOnFirstSuccess(t *testing.T) {
	a := &stubProvider{name: "a", tok: testToken("from-a")}
	b := &stubProvider{name: "b", tok: testToken("from-b")}
	r := newTestRegistry(a, b)

	at, err := r.TokenFromRequest(testRequest(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if at.AccountID != "from-a" {
		t.Errorf("got token from %q, want first provider", at.AccountID)
	}
	if b.calls != 0 {
		t.Errorf("second provider should not be tried after a success, called %d times", b.calls)
	}
}

func TestChainSkipsIgnorableSignals(t *testing.T) {
	a := &stubProvider{name: "a", err: ErrNoCredential}
	b := &stubProvider{name: "b", err: ErrNotSupported}
	c := &stubProvider{name: "c", tok: testToken("from-c")}
	r := newTestRegistry(a, b, c)

	at, err := r.TokenFromRequest(testRequest(), false)
	if err != nil {
		t.Fatalf("ignorable signals must not escape the chain: %v", err)
	}
	if at == nil || at.AccountID != "from-c" {
		t.Fatalf("expected the third provider's token, got %+v", at)
	}
}

func TestChainContinuesPastMalformed(t *testing.T) {
	a := &stubProvider{name: "a", err: &token.MalformedTokenError{Reason: "bad a"}}
	b := &stubProvider{name: "b", tok: testToken("from-b")}
	r := newTestRegistry(a, b)

	at, err := r.TokenFromRequest(testRequest(), false)
	if err != nil {
		t.Fatalf("a malformed token on one channel must not block a later provider: %v", err)
	}
	if at.AccountID != "from-b" {
		t.Errorf("got token from %q, want second provider", at.AccountID)
	}
}

func TestChainRaisesLastMalformed(t *testing.T) {
	a := &stubProvider{name: "a", err: &token.MalformedTokenError{Reason: "bad a"}}
	b := &stubProvider{name: "b", err: &token.MalformedTokenError{Reason: "bad b"}}
	r := newTestRegistry(a, b)

	_, err := r.TokenFromRequest(testRequest(), false)
	var malformed *token.MalformedTokenError
	if !errors.As(err, &malformed) {
		t.Fatalf("got %v, want MalformedTokenError", err)
	}
	if malformed.Reason != "bad b" {
		t.Errorf("got %q, want the last provider's failure", malformed.Reason)
	}
}

func TestChainNoDataIsNotAnError(t *testing.T) {
	a := &stubProvider{name: "a", err: ErrNoCredential}
	b := &stubProvider{name: "b", err: ErrNotSupported}
	r := newTestRegistry(a, b)

	at, err := r.TokenFromRequest(testRequest(), false)
	if err != nil {
		t.Fatalf("no credential data anywhere should not be an error: %v", err)
	}
	if at != nil {
		t.Errorf("expected no token, got %+v", at)
	}
}

func TestChainRejectsNilSuccess(t *testing.T) {
	// a provider returning (nil, nil) violates the contract
	a := &stubProvider{name: "a"}
	r := newTestRegistry(a)

	_, err := r.TokenFromRequest(testRequest(), false)
	var malformed *token.MalformedTokenError
	if !errors.As(err, &malformed) {
		t.Fatalf("nil success should surface as an error, got %v", err)
	}
}

func TestRefreshFallsBackToDefaultProvider(t *testing.T) {
	def := &stubProvider{name: DefaultProviderName, tok: testToken("default")}
	other := &stubProvider{name: "other", tok: testToken("other")}

	r := NewRegistry(nil)
	r.Register(def)
	r.Register(other)
	r.Refresh(nil)

	enabled := r.Enabled()
	if len(enabled) != 1 || enabled[0].Name() != DefaultProviderName {
		t.Fatalf("empty config should enable exactly the default provider, got %d", len(enabled))
	}
}

func TestRefreshSkipsUnknownNames(t *testing.T) {
	def := &stubProvider{name: DefaultProviderName}
	r := NewRegistry(nil)
	r.Register(def)
	r.Refresh([]string{"nope", DefaultProviderName, "missing"})

	enabled := r.Enabled()
	if len(enabled) != 1 || enabled[0].Name() != DefaultProviderName {
		t.Fatalf("unknown provider names should be skipped, got %d enabled", len(enabled))
	}
}

func TestRefreshPreservesConfiguredOrder(t *testing.T) {
	a := &stubProvider{name: "a"}
	b := &stubProvider{name: "b"}
	r := NewRegistry(nil)
	r.Register(a)
	r.Register(b)

	r.Refresh([]string{"b", "a"})
	enabled := r.Enabled()
	if len(enabled) != 2 || enabled[0].Name() != "b" || enabled[1].Name() != "a" {
		t.Fatalf("enabled chain should follow configured order, got %v", []string{enabled[0].Name(), enabled[1].Name()})
	}
}

func TestRegisterKeepsFirstProvider(t *testing.T) {
	first := &stubProvider{name: "dup", tok: testToken("first")}
	second := &stubProvider{name: "dup", tok: testToken("second")}

	r := NewRegistry(nil)
	r.Register(first)
	r.Register(second)
	r.Refresh([]string{"dup"})

	at, err := r.TokenFromRequest(testRequest(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if at.AccountID != "first" {
		t.Errorf("duplicate registration should keep the first provider, got %q", at.AccountID)
	}
}

func TestMintTokenFailsWhenNoProviderCanMint(t *testing.T) {
	a := &stubProvider{name: "a", err: ErrNotSupported}
	r := newTestRegistry(a)

	_, err := r.MintToken(&directory.Account{ID: "acct-1"}, MintOptions{})
	if err == nil {
		t.Fatal("minting must fail loudly when no provider can mint")
	}
}

func TestAllowsBasicAuthAggregation(t *testing.T) {
	a := &stubProvider{name: "a", noBasic: true}
	b := &stubProvider{name: "b"}

	r := newTestRegistry(a, b)
	if !r.AllowsBasicAuth(testRequest()) {
		t.Error("any provider allowing basic auth should win")
	}

	r2 := newTestRegistry(&stubProvider{name: "only", noBasic: true})
	if r2.AllowsBasicAuth(testRequest()) {
		t.Error("no provider allows basic auth")
	}
	if r2.AllowsURLKeyAuth(testRequest()) {
		t.Error("url key auth is declined by default")
	}
}
