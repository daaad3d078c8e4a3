package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/ledger"
	"github.com/harbormail/authkit/token"
	"github.com/thejerf/abtime"
)

type fixture struct {
	validator *Validator
	dir       *directory.MemDirectory
	ledger    *ledger.Memory
	clock     *abtime.ManualTime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := abtime.NewManualAtTime(time.Unix(1500000000, 0).UTC())
	led := ledger.NewMemory(clock, 0)
	dir := directory.NewMemDirectory()
	return &fixture{
		validator: NewValidator(dir, led, clock, nil),
		dir:       dir,
		ledger:    led,
		clock:     clock,
	}
}

// liveToken registers and returns a token that passes every check for the
// given account.
func (f *fixture) liveToken(t *testing.T, acctID string) *token.Token {
	t.Helper()
	at := &token.Token{
		AccountID:      acctID,
		Usage:          token.UsageAuth,
		Type:           token.TypeAuth,
		Expires:        f.clock.Now().Add(time.Hour),
		Validity:       -1,
		RegistrationID: "reg-" + acctID,
	}
	if err := f.ledger.Register(at.RegistrationID, at.Expires); err != nil {
		t.Fatalf("register: %v", err)
	}
	return at
}

func (f *fixture) addAccount(t *testing.T, acct directory.Account) {
	t.Helper()
	if acct.Status == "" {
		acct.Status = directory.StatusActive
	}
	f.dir.Add(&acct)
}

func TestValidateHappyPath(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	at := f.liveToken(t, "acct-1")

	acct, err := f.validator.Validate(context.Background(), at, token.UsageAuth, true)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if acct == nil || acct.ID != "acct-1" {
		t.Fatalf("got %+v, want the token's account", acct)
	}
}

func TestValidateUsageMismatch(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	at := f.liveToken(t, "acct-1")
	at.Usage = token.UsageTwoFactorAuth

	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)
}

func TestValidateUsageMismatchReversed(t *testing.T) {
	// an ordinary auth token never satisfies a reset-password requirement;
	// only the reset-token-under-auth direction gets special treatment
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	at := f.liveToken(t, "acct-1")

	_, err := f.validator.Validate(context.Background(), at, token.UsageResetPassword, false)
	assertStrippedExpired(t, err)

	var reset *ResetPasswordRequiredError
	if errors.As(err, &reset) {
		t.Fatal("an auth token must not trigger the reset-password redirect")
	}
}

func TestValidateExpiredDeregisters(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	at := f.liveToken(t, "acct-1")

	f.clock.Advance(2 * time.Hour)
	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)

	registered, err := f.ledger.IsRegistered(at.RegistrationID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if registered {
		t.Error("an expired token should be deregistered as a side effect")
	}
}

func TestValidateSkewTolerance(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	at := f.liveToken(t, "acct-1")
	f.validator.Skew = 5 * time.Minute

	f.clock.Advance(time.Hour + 4*time.Minute)
	if _, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false); err != nil {
		t.Fatalf("token inside the skew window should validate: %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)
}

func TestValidateUnregistered(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	at := f.liveToken(t, "acct-1")
	if err := f.ledger.Deregister(at.RegistrationID); err != nil {
		t.Fatalf("deregister: %v", err)
	}

	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)
}

func TestValidateAccountGone(t *testing.T) {
	f := newFixture(t)
	at := f.liveToken(t, "missing")

	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)
}

func TestValidateBootstrapMissingAccount(t *testing.T) {
	f := newFixture(t)
	at := f.liveToken(t, "not-yet-provisioned")
	at.Bootstrap = true

	acct, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	if err != nil {
		t.Fatalf("bootstrap token for a missing account must validate: %v", err)
	}
	if acct != nil {
		t.Errorf("got %+v, want the nil-account bootstrap outcome", acct)
	}
}

func TestValidateStaleValidityGeneration(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice", TokenValidity: 4})
	at := f.liveToken(t, "acct-1")
	at.Validity = 3

	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)

	// unknown generation always passes
	at.Validity = -1
	if _, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false); err != nil {
		t.Fatalf("unknown validity generation should pass: %v", err)
	}
}

func TestValidateInactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice", Status: directory.StatusLocked})
	at := f.liveToken(t, "acct-1")

	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)
}

func TestValidateTwoFactorInactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice", Status: directory.StatusLocked})
	at := f.liveToken(t, "acct-1")
	at.Usage = token.UsageTwoFactorAuth

	_, err := f.validator.Validate(context.Background(), at, token.UsageTwoFactorAuth, false)
	var failed *AuthFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("got %v, want AuthFailedError for a 2fa token on an inactive account", err)
	}
	if failed.Account != "alice" {
		t.Errorf("failed account = %q, want alice", failed.Account)
	}
}

func TestValidateResetPasswordUnderAuth(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	at := f.liveToken(t, "acct-1")
	at.Usage = token.UsageResetPassword

	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	var reset *ResetPasswordRequiredError
	if !errors.As(err, &reset) {
		t.Fatalf("got %v, want ResetPasswordRequiredError", err)
	}

	// a reset-password token that is itself invalid propagates the failure
	// instead of the reset signal
	f.clock.Advance(2 * time.Hour)
	_, err = f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	var expired *AuthExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("got %v, want AuthExpiredError for an expired reset token", err)
	}
}

func TestValidateDelegatedAuth(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "admin-1", Name: "root", IsAdmin: true})
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice", Status: directory.StatusLocked})

	// delegated auth reaches even an inactive target account
	at := f.liveToken(t, "acct-1")
	at.AdminAccountID = "admin-1"
	acct, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	if err != nil {
		t.Fatalf("delegated auth to an inactive account: %v", err)
	}
	if acct.ID != "acct-1" {
		t.Errorf("got account %q, want the target", acct.ID)
	}
}

func TestValidateDelegatedMaintenanceBlocked(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "admin-1", Name: "root", IsAdmin: true})
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice", Status: directory.StatusMaintenance})

	at := f.liveToken(t, "acct-1")
	at.AdminAccountID = "admin-1"
	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)
}

func TestValidateDelegatedInadequateAdmin(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "plain-1", Name: "bob"})
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})

	at := f.liveToken(t, "acct-1")
	at.AdminAccountID = "plain-1"
	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("got %v, want PermissionDeniedError for a non-admin delegator", err)
	}
}

func TestValidateDelegatedAdminGoneOrInactive(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, directory.Account{ID: "acct-1", Name: "alice"})
	f.addAccount(t, directory.Account{ID: "admin-2", Name: "ops", IsDelegatedAdmin: true, Status: directory.StatusLocked})

	at := f.liveToken(t, "acct-1")
	at.AdminAccountID = "gone"
	_, err := f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)

	at.AdminAccountID = "admin-2"
	_, err = f.validator.Validate(context.Background(), at, token.UsageAuth, false)
	assertStrippedExpired(t, err)
}

// assertStrippedExpired checks both that the failure is an AuthExpiredError
// and that the public boundary stripped its detail.
func assertStrippedExpired(t *testing.T, err error) {
	t.Helper()
	var expired *AuthExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("got %v, want AuthExpiredError", err)
	}
	if expired.Reason != "" {
		t.Errorf("public failure leaked detail %q", expired.Reason)
	}
}
