package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all service configuration, loaded once at startup and shared
// read-only by all requests.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	UseHTTPS     bool   `env:"USE_HTTPS"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"wiki_sso.db"`

	// ServiceName is the display name of the identity provider, used on the
	// landing page ("log in with <ServiceName>").
	ServiceName string `env:"OAUTH_SERVICE_NAME" envDefault:"OAuth2"`

	ClientID     string `env:"OAUTH_CLIENT_ID"`
	ClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	RedirectURL  string `env:"OAUTH_REDIRECT_URL"`

	// Explicit provider endpoints. Not required when IssuerURL is set, in
	// which case they are discovered via OIDC discovery.
	AuthorizeEndpoint     string `env:"OAUTH_AUTHORIZE_ENDPOINT"`
	TokenEndpoint         string `env:"OAUTH_TOKEN_ENDPOINT"`
	ResourceOwnerEndpoint string `env:"OAUTH_RESOURCE_OWNER_ENDPOINT"`
	IssuerURL             string `env:"OAUTH_ISSUER_URL"`

	Scopes []string `env:"OAUTH_SCOPES" envSeparator:","`

	// Claim paths address fields in the resource-owner response document.
	// Nested keys are separated with dots (e.g. "data.email").
	UsernameClaim string `env:"OAUTH_USERNAME_CLAIM" envDefault:"username"`
	EmailClaim    string `env:"OAUTH_EMAIL_CLAIM" envDefault:"email"`

	// AllowedDomains restricts login to email addresses whose domain (the
	// part after the last @) is an exact member of the list. Empty means no
	// restriction. Comparison is case-sensitive.
	AllowedDomains []string `env:"OAUTH_ALLOWED_DOMAINS" envSeparator:","`

	// AuthzFailureMessage is shown to the user when the authorization policy
	// explicitly denies the login.
	AuthzFailureMessage string `env:"OAUTH_AUTHZ_FAILURE_MESSAGE" envDefault:"Not authorized"`

	// TokenInQuery sends the access token as an access_token query parameter
	// on the resource-owner call instead of a Bearer header. Some providers
	// only support this older style.
	TokenInQuery bool `env:"OAUTH_TOKEN_IN_QUERY"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("OAUTH_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("OAUTH_CLIENT_SECRET is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL is required")
	}

	// Endpoints must either be set explicitly or be discoverable.
	if c.IssuerURL == "" {
		if c.AuthorizeEndpoint == "" || c.TokenEndpoint == "" || c.ResourceOwnerEndpoint == "" {
			return fmt.Errorf("either OAUTH_ISSUER_URL or all of OAUTH_AUTHORIZE_ENDPOINT, OAUTH_TOKEN_ENDPOINT and OAUTH_RESOURCE_OWNER_ENDPOINT must be set")
		}
	}

	if c.UsernameClaim == "" {
		return fmt.Errorf("OAUTH_USERNAME_CLAIM must not be empty")
	}
	if c.EmailClaim == "" {
		return fmt.Errorf("OAUTH_EMAIL_CLAIM must not be empty")
	}

	return nil
}
