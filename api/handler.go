// Package api exposes the auth core over HTTP.
//
// The handler wires the provider chain and the validator to a small echo
// surface: password login and explicit-token login mint or resolve tokens
// and set the audience cookie, a middleware authenticates protected routes
// through the chain, logout revokes the registration, and an admin endpoint
// mints delegated tokens.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/ledger"
	"github.com/harbormail/authkit/provider"
	"github.com/harbormail/authkit/token"
	"github.com/harbormail/authkit/validate"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const accountContextKey = "authkit.account"

// PasswordAuthenticator verifies primary credentials for the login
// endpoint. Implemented by directory.MemDirectory; production deployments
// plug in their provisioning backend.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, name, password string) (*directory.Account, error)
}

type Handler struct {
	registry  *provider.Registry
	validator *validate.Validator
	dir       directory.Directory
	auth      PasswordAuthenticator
	ledger    ledger.Ledger
	log       *zap.Logger
}

func NewHandler(registry *provider.Registry, validator *validate.Validator,
	dir directory.Directory, auth PasswordAuthenticator, led ledger.Ledger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		registry:  registry,
		validator: validator,
		dir:       dir,
		auth:      auth,
		ledger:    led,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/login", h.HandleLogin)
	g.POST("/auth/token", h.HandleTokenAuth)
	g.POST("/auth/logout", h.HandleLogout)

	protected := g.Group("")
	protected.Use(h.AuthMiddleware)
	protected.GET("/whoami", h.HandleWhoAmI)
	protected.POST("/admin/delegate", h.HandleDelegate)
}

// HandleLogin authenticates a name/password pair and mints a fresh token
// through the provider chain.
func (h *Handler) HandleLogin(c echo.Context) error {
	var body struct {
		Name     string `json:"name"`
		Password string `json:"password"`
		Admin    bool   `json:"admin"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "invalid request body", err)
	}

	if !h.registry.AllowsBasicAuth(c.Request()) {
		return h.Error(c, http.StatusMethodNotAllowed, "password auth not allowed", nil)
	}

	acct, err := h.auth.Authenticate(c.Request().Context(), body.Name, body.Password)
	if err != nil {
		return h.Error(c, http.StatusUnauthorized, "authentication failed", err)
	}

	at, err := h.registry.MintToken(acct, provider.MintOptions{IsAdmin: body.Admin})
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "could not mint token", err)
	}

	h.setTokenCookie(c, at, body.Admin)
	return c.JSON(http.StatusOK, tokenResponse(acct, at))
}

// HandleTokenAuth authenticates an explicitly supplied encoded token, the
// non-cookie channel.
func (h *Handler) HandleTokenAuth(c echo.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "invalid request body", err)
	}

	at, err := h.registry.TokenFromEncoded(body.Token)
	if err != nil {
		return h.Error(c, http.StatusUnauthorized, "invalid token", err)
	}
	if at == nil {
		return h.Error(c, http.StatusUnauthorized, "no credentials", nil)
	}

	acct, err := h.validator.Validate(c.Request().Context(), at, token.UsageAuth, true)
	if err != nil {
		return h.validationError(c, err)
	}
	if acct == nil {
		// bootstrap tokens have no account to report
		return c.JSON(http.StatusOK, map[string]any{"bootstrap": true})
	}

	h.setTokenCookie(c, at, at.IsAdmin)
	return c.JSON(http.StatusOK, tokenResponse(acct, at))
}

// HandleLogout deregisters the presented token and clears the cookie. Both
// cookie audiences are tried, so an admin-only session can log out too.
func (h *Handler) HandleLogout(c echo.Context) error {
	admin := false
	at, err := h.registry.TokenFromRequest(c.Request(), false)
	if at == nil {
		admin = true
		at, err = h.registry.TokenFromRequest(c.Request(), true)
	}
	if err != nil || at == nil {
		return h.Error(c, http.StatusUnauthorized, "no credentials", err)
	}

	if err := h.ledger.Deregister(at.RegistrationID); err != nil {
		return h.Error(c, http.StatusInternalServerError, "logout failed", err)
	}

	h.clearTokenCookie(c, admin)
	return c.NoContent(http.StatusNoContent)
}

// AuthMiddleware resolves and validates the request token and stores the
// account in the echo context.
func (h *Handler) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		at, err := h.registry.TokenFromRequest(c.Request(), false)
		if err != nil {
			return h.Error(c, http.StatusUnauthorized, "invalid token", err)
		}
		if at == nil {
			return h.Error(c, http.StatusUnauthorized, "no credentials", nil)
		}

		acct, err := h.validator.Validate(c.Request().Context(), at, token.UsageAuth, true)
		if err != nil {
			return h.validationError(c, err)
		}
		if acct == nil {
			return h.Error(c, http.StatusUnauthorized, "no account for bootstrap token", nil)
		}

		c.Set(accountContextKey, acct)
		return next(c)
	}
}

func (h *Handler) HandleWhoAmI(c echo.Context) error {
	acct := c.Get(accountContextKey).(*directory.Account)
	return c.JSON(http.StatusOK, map[string]any{
		"id":     acct.ID,
		"name":   acct.Name,
		"status": acct.Status,
		"admin":  acct.IsAdequateAdmin(),
	})
}

// HandleDelegate mints a delegated token: the authenticated admin acting on
// behalf of the target account.
func (h *Handler) HandleDelegate(c echo.Context) error {
	admin := c.Get(accountContextKey).(*directory.Account)
	if !admin.IsAdequateAdmin() {
		return h.Error(c, http.StatusForbidden, "not an admin", nil)
	}

	var body struct {
		AccountID string `json:"account_id"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "invalid request body", err)
	}

	target, err := h.dir.AccountByID(c.Request().Context(), body.AccountID)
	if err != nil {
		return h.Error(c, http.StatusNotFound, "account not found", err)
	}

	at, err := h.registry.MintToken(target, provider.MintOptions{DelegatingAdmin: admin})
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "could not mint token", err)
	}

	return c.JSON(http.StatusOK, tokenResponse(target, at))
}

// validationError maps the validator's error taxonomy to HTTP statuses.
func (h *Handler) validationError(c echo.Context, err error) error {
	var reset *validate.ResetPasswordRequiredError
	if errors.As(err, &reset) {
		return c.JSON(http.StatusForbidden, map[string]any{"error": "reset password required"})
	}
	var denied *validate.PermissionDeniedError
	if errors.As(err, &denied) {
		return h.Error(c, http.StatusForbidden, "permission denied", err)
	}
	var failed *validate.AuthFailedError
	if errors.As(err, &failed) {
		return h.Error(c, http.StatusUnauthorized, "authentication failed", err)
	}
	return h.Error(c, http.StatusUnauthorized, "auth credentials have expired", err)
}

func (h *Handler) setTokenCookie(c echo.Context, at *token.Token, admin bool) {
	name := provider.CookieName
	if admin {
		name = provider.AdminCookieName
	}
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    at.Encoded,
		Path:     "/",
		Expires:  at.Expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearTokenCookie(c echo.Context, admin bool) {
	name := provider.CookieName
	if admin {
		name = provider.AdminCookieName
	}
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (h *Handler) Error(c echo.Context, status int, msg string, err error) error {
	if err != nil {
		h.log.Debug("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, map[string]any{"error": msg})
}

func tokenResponse(acct *directory.Account, at *token.Token) map[string]any {
	return map[string]any{
		"account": map[string]any{
			"id":   acct.ID,
			"name": acct.Name,
		},
		"token":   at.Encoded,
		"expires": at.Expires,
	}
}
