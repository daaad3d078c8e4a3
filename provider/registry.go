package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/token"
	"go.uber.org/zap"
)

// Registry holds all installed providers and the ordered subset currently
// enabled. Providers are registered once at startup; the enabled chain is
// recomputed wholesale by Refresh and swapped atomically, so a resolution in
// flight always sees either the old chain or the new one in full.
//
// The registry is an explicit object wired at the composition root and
// passed to whatever resolves or validates tokens.
type Registry struct {
	log *zap.Logger

	mu        sync.Mutex
	installed map[string]Provider

	enabled atomic.Pointer[[]Provider]
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		log:       log,
		installed: make(map[string]Provider),
	}
	r.enabled.Store(&[]Provider{})
	return r
}

// Register installs a provider under its name. First writer wins; a
// duplicate name is logged and ignored.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.installed[name]; exists {
		r.log.Error("auth provider already exists, not adding", zap.String("provider", name))
		return
	}
	r.installed[name] = p
	r.log.Info("adding auth provider", zap.String("provider", name))
}

// Refresh recomputes the enabled chain from an ordered list of provider
// names. Unknown names are skipped with a warning. When the list yields no
// providers the built-in default provider is enabled, so the chain is never
// empty.
func (r *Registry) Refresh(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := make([]Provider, 0, len(names))
	for _, name := range names {
		p, ok := r.installed[name]
		if !ok {
			r.log.Warn("enabled auth provider is not installed, skipping",
				zap.String("provider", name))
			continue
		}
		chain = append(chain, p)
	}

	if len(chain) == 0 {
		if p, ok := r.installed[DefaultProviderName]; ok {
			chain = append(chain, p)
		} else {
			r.log.Error("no auth providers enabled and default provider is not installed")
		}
	}

	r.enabled.Store(&chain)
}

// Enabled returns the current chain in order.
func (r *Registry) Enabled() []Provider {
	return *r.enabled.Load()
}

// resolve runs one resolution operation down the enabled chain: first
// success wins, ignorable signals skip to the next provider, and the last
// non-ignorable failure is raised only when nothing succeeds. No failure and
// no success means no credential data was present anywhere: (nil, nil).
func (r *Registry) resolve(op string, call func(Provider) (*token.Token, error)) (*token.Token, error) {
	var lastErr error

	for _, p := range r.Enabled() {
		at, err := call(p)
		if err == nil {
			if at == nil {
				// a provider must never return a nil success
				lastErr = &token.MalformedTokenError{
					Reason: fmt.Sprintf("auth provider %s returned no token", p.Name()),
				}
				continue
			}
			return at, nil
		}

		if ignorable(err) {
			r.log.Debug("auth provider has no data for request",
				zap.String("op", op), zap.String("provider", p.Name()), zap.Error(err))
			continue
		}

		// Remember and keep going: a malformed token on one channel must
		// not block a valid token from a later provider. Last one wins.
		if lastErr != nil {
			r.log.Debug("auth provider error superseded",
				zap.String("op", op), zap.Error(lastErr))
		}
		lastErr = err
		r.log.Debug("auth provider error",
			zap.String("op", op), zap.String("provider", p.Name()), zap.Error(err))
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// TokenFromRequest resolves a token from a cookie/header-bearing request.
// Returns (nil, nil) when no enabled provider finds credential data: the
// request is simply unauthenticated.
func (r *Registry) TokenFromRequest(req *http.Request, isAdminReq bool) (*token.Token, error) {
	return r.resolve("request", func(p Provider) (*token.Token, error) {
		return p.FromRequest(req, isAdminReq)
	})
}

// TokenFromContext resolves a token from a protocol header context.
func (r *Registry) TokenFromContext(hctx *HeaderContext) (*token.Token, error) {
	return r.resolve("context", func(p Provider) (*token.Token, error) {
		return p.FromContext(hctx)
	})
}

// TokenFromEncoded resolves an explicitly supplied encoded token string.
func (r *Registry) TokenFromEncoded(encoded string) (*token.Token, error) {
	return r.resolve("encoded", func(p Provider) (*token.Token, error) {
		return p.FromEncoded(encoded)
	})
}

// MintToken mints a new token for the account through the chain. Unlike
// resolution, minting must succeed or fail: when no provider can mint, an
// error is returned.
func (r *Registry) MintToken(acct *directory.Account, opts MintOptions) (*token.Token, error) {
	at, err := r.resolve("mint", func(p Provider) (*token.Token, error) {
		return p.Mint(acct, opts)
	})
	if err != nil {
		return nil, err
	}
	if at == nil {
		return nil, fmt.Errorf("registry: no provider could mint a token for account %q", acct.ID)
	}
	return at, nil
}

// AdminToken mints an admin auth token for the given directory account id.
func (r *Registry) AdminToken(ctx context.Context, dir directory.Directory, adminID string) (*token.Token, error) {
	acct, err := dir.AccountByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("registry: admin account %q: %w", adminID, err)
	}
	return r.MintToken(acct, MintOptions{IsAdmin: true})
}

// AllowsBasicAuth reports whether any enabled provider allows HTTP basic
// authentication for the request.
func (r *Registry) AllowsBasicAuth(req *http.Request) bool {
	for _, p := range r.Enabled() {
		if p.AllowsBasicAuth(req) {
			return true
		}
	}
	return false
}

// AllowsURLKeyAuth reports whether any enabled provider allows URL access
// key authentication for the request.
func (r *Registry) AllowsURLKeyAuth(req *http.Request) bool {
	for _, p := range r.Enabled() {
		if p.AllowsURLKeyAuth(req) {
			return true
		}
	}
	return false
}
