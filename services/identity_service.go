package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blogem/wiki-sso/claims"
	"github.com/blogem/wiki-sso/config"
	"github.com/blogem/wiki-sso/models"
	"github.com/blogem/wiki-sso/repositories"
)

var (
	// ErrPolicyDenied is returned when the authorization policy explicitly
	// rejects the login. The wrapped message is safe to show to the user.
	ErrPolicyDenied = errors.New("authorization policy denied login")

	// ErrClaimMissing is returned when a configured claim path is absent
	// from the provider's claims document.
	ErrClaimMissing = errors.New("required claim missing from provider response")

	// ErrAccountCreation is returned when provisioning a new account fails
	// at the store level, including username races.
	ErrAccountCreation = errors.New("account creation failed")
)

// IdentityService maps provider claims onto a local account
type IdentityService interface {
	// Reconcile resolves the claims document to a local user, provisioning
	// an account when none exists. A (nil, nil) return is a silent decline:
	// the claims are valid but not permitted to log in here.
	Reconcile(ctx context.Context, doc claims.Document) (*models.User, error)

	// IssueAuthToken generates and persists a fresh long-lived remember
	// token for the user.
	IssueAuthToken(ctx context.Context, user *models.User) (string, error)

	// ClearAuthToken invalidates the user's remember token.
	ClearAuthToken(ctx context.Context, user *models.User) error

	// UserByAuthToken resolves a remember token back to its user. Returns
	// (nil, nil) when the token is unknown.
	UserByAuthToken(ctx context.Context, token string) (*models.User, error)
}

// identityService implements IdentityService
type identityService struct {
	users  repositories.UserRepository
	cfg    *config.Config
	policy AuthorizationPolicy
	hooks  []BeforeUserSaveHook
}

// NewIdentityService creates a new identity service. policy may be nil when
// no authorization policy is configured.
func NewIdentityService(users repositories.UserRepository, cfg *config.Config, policy AuthorizationPolicy, hooks ...BeforeUserSaveHook) IdentityService {
	return &identityService{
		users:  users,
		cfg:    cfg,
		policy: policy,
		hooks:  hooks,
	}
}

// Reconcile resolves provider claims to a local account
func (s *identityService) Reconcile(ctx context.Context, doc claims.Document) (*models.User, error) {
	if s.policy != nil {
		switch s.policy.Authorize(doc) {
		case Allow:
		case NotPermitted:
			return nil, nil
		case Deny:
			return nil, fmt.Errorf("%w: %s", ErrPolicyDenied, s.cfg.AuthzFailureMessage)
		}
	}

	username, ok := doc.Extract(s.cfg.UsernameClaim)
	if !ok || username == "" {
		return nil, fmt.Errorf("%w: %s", ErrClaimMissing, s.cfg.UsernameClaim)
	}

	email, ok := doc.Extract(s.cfg.EmailClaim)
	if !ok || email == "" {
		return nil, fmt.Errorf("%w: %s", ErrClaimMissing, s.cfg.EmailClaim)
	}

	if len(s.cfg.AllowedDomains) > 0 {
		// Exact, case-sensitive match on the part after the last @.
		domain := models.EmailDomain(email)
		if !domainAllowed(domain, s.cfg.AllowedDomains) {
			return nil, nil
		}
	}

	for _, hook := range s.hooks {
		if err := hook(&username, &email, doc); err != nil {
			return nil, fmt.Errorf("before-save hook rejected login: %w", err)
		}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	if user != nil {
		// Existing account is reused as-is; stored fields are not updated
		// from the provider.
		return user, nil
	}

	user = &models.User{
		Username:       username,
		Email:          email,
		RealName:       username,
		EmailConfirmed: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountCreation, err)
	}

	return user, nil
}

// IssueAuthToken generates a fresh remember token and persists it
func (s *identityService) IssueAuthToken(ctx context.Context, user *models.User) (string, error) {
	token := uuid.NewString()
	if err := s.users.UpdateAuthToken(ctx, user.ID, token); err != nil {
		return "", fmt.Errorf("failed to issue auth token: %w", err)
	}

	user.AuthToken = token

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		return "", fmt.Errorf("failed to record login: %w", err)
	}

	return token, nil
}

// ClearAuthToken invalidates the user's remember token
func (s *identityService) ClearAuthToken(ctx context.Context, user *models.User) error {
	if err := s.users.UpdateAuthToken(ctx, user.ID, ""); err != nil {
		return fmt.Errorf("failed to clear auth token: %w", err)
	}

	user.AuthToken = ""
	return nil
}

// UserByAuthToken resolves a remember token back to its user
func (s *identityService) UserByAuthToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	return s.users.GetByAuthToken(ctx, token)
}

// domainAllowed checks exact membership of domain in the allowlist
func domainAllowed(domain string, allowed []string) bool {
	for _, d := range allowed {
		if domain == d {
			return true
		}
	}
	return false
}
