package validate

// AuthExpiredError means the token is structurally fine but not currently
// valid: expired, unregistered, wrong usage, account gone or not active, or
// a stale validity generation. User-visible as "please re-authenticate".
// The public Validate boundary strips the Reason; full detail stays in
// server-side debug logs.
type AuthExpiredError struct {
	Reason string
}

func (e *AuthExpiredError) Error() string {
	if e.Reason == "" {
		return "auth credentials have expired"
	}
	return "auth credentials have expired: " + e.Reason
}

// AuthFailedError means the credential is actively wrong, not merely stale.
// Distinguished from AuthExpiredError because the caller UX differs: retry
// versus re-login.
type AuthFailedError struct {
	Account string
	Reason  string
}

func (e *AuthFailedError) Error() string {
	return "authentication failed for " + e.Account + ": " + e.Reason
}

// PermissionDeniedError means a delegated-auth admin lacks sufficient
// privilege.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: " + e.Reason
}

// ResetPasswordRequiredError is a distinguished successful-but-redirected
// outcome: the presented token is a valid reset-password token, so the
// caller should route to the password-reset flow instead of treating this
// as a hard auth failure.
type ResetPasswordRequiredError struct{}

func (e *ResetPasswordRequiredError) Error() string {
	return "password reset required"
}
