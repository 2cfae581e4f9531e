package authenticator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/blogem/wiki-sso/claims"
	"github.com/blogem/wiki-sso/config"
)

// OpenIDProvider implements the Provider interface for providers that
// support OIDC discovery. The authorize, token and userinfo endpoints are
// discovered from the issuer instead of being configured explicitly.
type OpenIDProvider struct {
	provider *oidc.Provider
	config   oauth2.Config
	http     *http.Client
}

// NewOpenIDProvider creates a provider whose endpoints are resolved via
// OIDC discovery on the configured issuer URL.
func NewOpenIDProvider(ctx context.Context, cfg *config.Config) (*OpenIDProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	conf := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	return &OpenIDProvider{
		provider: provider,
		config:   conf,
		http:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// AuthCodeURL returns the authorization URL for the provider
func (p *OpenIDProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange exchanges an authorization code for an access token
func (p *OpenIDProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)

	oauth2Token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	return &Token{
		AccessToken: oauth2Token.AccessToken,
		TokenType:   oauth2Token.TokenType,
		Expiry:      oauth2Token.Expiry,
	}, nil
}

// FetchResourceOwner fetches the claims document from the discovered
// userinfo endpoint.
func (p *OpenIDProvider) FetchResourceOwner(ctx context.Context, token *Token) (claims.Document, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)

	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Expiry:      token.Expiry,
	})

	info, err := p.provider.UserInfo(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}

	var raw json.RawMessage
	if err := info.Claims(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo claims: %w", err)
	}

	return claims.Document(raw), nil
}
