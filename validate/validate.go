// Package validate implements the token validity state machine.
//
// Given a resolved token and a directory, the Validator decides whether the
// token currently authenticates an account: usage match, expiry,
// registration, account existence and status, validity generation, and the
// delegated-admin authority checks. Internal failure detail is collapsed to
// a vanilla AuthExpiredError at the public boundary so an adversarial caller
// learns nothing about which check failed; the detail is debug-logged
// server-side.
package validate

import (
	"context"
	"errors"
	"time"

	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/ledger"
	"github.com/harbormail/authkit/token"
	"github.com/thejerf/abtime"
	"go.uber.org/zap"
)

// Validator runs the validity state machine. Safe for concurrent use; each
// Validate call is independent and holds no cross-request state.
type Validator struct {
	dir    directory.Directory
	ledger ledger.Ledger
	clock  abtime.AbstractTime
	log    *zap.Logger

	// Skew is the allowed clock skew for the expiry check.
	Skew time.Duration
}

func NewValidator(dir directory.Directory, led ledger.Ledger, clock abtime.AbstractTime, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{dir: dir, ledger: led, clock: clock, log: log}
}

// Validate checks the token against the required usage and resolves the
// authenticated account.
//
// A reset-password token presented where ordinary auth is required is first
// validated against its own usage; when that succeeds the call still fails,
// with ResetPasswordRequiredError, so the caller can redirect to the
// password-reset flow.
//
// A nil account with a nil error is a deliberate bootstrap outcome: the
// token carries the bootstrap flag and its account does not exist yet.
// Callers must treat it as a distinct valid result.
//
// Any AuthExpiredError from the internal checks is re-signalled as a fresh,
// detail-stripped AuthExpiredError; the original is debug-logged. Other
// error kinds propagate unchanged.
func (v *Validator) Validate(ctx context.Context, at *token.Token, usage token.Usage, recordAccount bool) (*directory.Account, error) {
	if at.Usage == token.UsageResetPassword && usage == token.UsageAuth {
		if _, err := v.validate(ctx, at, token.UsageResetPassword, recordAccount); err != nil {
			return nil, err
		}
		return nil, &ResetPasswordRequiredError{}
	}

	acct, err := v.validate(ctx, at, usage, recordAccount)
	if err != nil {
		var expired *AuthExpiredError
		if errors.As(err, &expired) {
			// do not expose which check failed to a potentially malicious
			// caller; the root cause stays in the debug log
			v.log.Debug("auth token validation failed", zap.Error(err))
			return nil, &AuthExpiredError{}
		}
		return nil, err
	}
	return acct, nil
}

func (v *Validator) validate(ctx context.Context, at *token.Token, usage token.Usage, recordAccount bool) (*directory.Account, error) {
	if at.Usage != usage {
		return nil, &AuthExpiredError{Reason: "invalid usage value"}
	}

	if v.clock.Now().After(at.Expires.Add(v.Skew)) {
		v.expireCleanup(at)
		return nil, &AuthExpiredError{}
	}

	registered, err := v.ledger.IsRegistered(at.RegistrationID)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, &AuthExpiredError{}
	}

	// the authenticated account must still exist and be usable; it may have
	// been deleted or disabled since the token was minted
	acct, err := v.dir.AccountByID(ctx, at.AccountID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		if at.Bootstrap {
			// bootstrap tokens tolerate a missing account: a valid
			// nil-account outcome, not a failure
			v.log.Debug("bootstrap token validated without account",
				zap.String("account_id", at.AccountID))
			return nil, nil
		}
		return nil, &AuthExpiredError{Reason: "account " + at.AccountID + " not found"}
	case err != nil:
		return nil, err
	}

	if recordAccount {
		v.log.Debug("authenticated", zap.String("account", acct.Name))
	}

	if !acct.CheckTokenValidity(at.Validity) {
		return nil, &AuthExpiredError{Reason: "invalid validity value"}
	}

	delegated := at.IsDelegatedAuth()

	if !delegated && acct.Status != directory.StatusActive {
		if at.Usage == token.UsageTwoFactorAuth {
			// a 2FA token against an inactive account reports like a
			// password auth against an inactive account would
			return nil, &AuthFailedError{Account: acct.Name, Reason: "account not active"}
		}
		return nil, &AuthExpiredError{Reason: "account not active"}
	}

	if delegated {
		// delegated auth allows access unless the target account is in
		// maintenance mode
		if acct.Status == directory.StatusMaintenance {
			return nil, &AuthExpiredError{Reason: "delegated account in maintenance mode"}
		}

		admin, err := v.dir.AccountByID(ctx, at.AdminAccountID)
		switch {
		case errors.Is(err, directory.ErrNotFound):
			return nil, &AuthExpiredError{Reason: "delegating account " + at.AdminAccountID + " not found"}
		case err != nil:
			return nil, err
		}

		if !admin.IsAdequateAdmin() {
			return nil, &PermissionDeniedError{Reason: "not an admin for delegated auth"}
		}
		if admin.Status != directory.StatusActive {
			return nil, &AuthExpiredError{Reason: "delegating account is not active"}
		}
	}

	return acct, nil
}

// expireCleanup deregisters an expired token that is still registered. The
// one mutation the validation path performs, isolated so it is auditable as
// a distinct effect.
func (v *Validator) expireCleanup(at *token.Token) {
	registered, err := v.ledger.IsRegistered(at.RegistrationID)
	if err != nil || !registered {
		return
	}
	if err := v.ledger.Deregister(at.RegistrationID); err != nil {
		v.log.Error("unable to deregister expired auth token",
			zap.String("registration_id", at.RegistrationID), zap.Error(err))
	}
}
