package services

import "github.com/blogem/wiki-sso/claims"

// Decision is the outcome of an authorization policy evaluation.
type Decision int

const (
	// Allow permits the login to proceed.
	Allow Decision = iota

	// NotPermitted declines the login without raising an error. The user is
	// sent back to the landing page and no account is touched.
	NotPermitted

	// Deny rejects the login with the configured failure message shown to
	// the user.
	Deny
)

// AuthorizationPolicy decides whether a claims document may log in. It is
// evaluated before claim extraction, so implementations see the full raw
// document.
type AuthorizationPolicy interface {
	Authorize(doc claims.Document) Decision
}

// PolicyFunc adapts a function to the AuthorizationPolicy interface.
type PolicyFunc func(doc claims.Document) Decision

// Authorize implements AuthorizationPolicy
func (f PolicyFunc) Authorize(doc claims.Document) Decision {
	return f(doc)
}

// BeforeUserSaveHook runs after claim extraction and allowlist checks, just
// before the account is looked up or provisioned. Hooks may rewrite the
// username or email; a non-nil error vetoes the login.
type BeforeUserSaveHook func(username, email *string, doc claims.Document) error
