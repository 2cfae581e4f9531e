package authenticator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/blogem/wiki-sso/claims"
	"github.com/blogem/wiki-sso/config"
)

// maxClaimsBody bounds the size of the resource-owner response we are
// willing to read.
const maxClaimsBody = 1 << 20

// GenericProvider implements the Provider interface against any OAuth2
// provider with explicitly configured authorize, token and resource-owner
// endpoints.
type GenericProvider struct {
	config        oauth2.Config
	resourceOwner string
	tokenInQuery  bool
	http          *http.Client
}

// NewGenericProvider creates a provider from explicit endpoint configuration
func NewGenericProvider(cfg *config.Config) (*GenericProvider, error) {
	if cfg.AuthorizeEndpoint == "" {
		return nil, errors.New("authorize endpoint is required")
	}
	if cfg.TokenEndpoint == "" {
		return nil, errors.New("token endpoint is required")
	}
	if cfg.ResourceOwnerEndpoint == "" {
		return nil, errors.New("resource owner endpoint is required")
	}

	conf := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizeEndpoint,
			TokenURL: cfg.TokenEndpoint,
		},
		Scopes: cfg.Scopes,
	}

	return &GenericProvider{
		config:        conf,
		resourceOwner: cfg.ResourceOwnerEndpoint,
		tokenInQuery:  cfg.TokenInQuery,
		http:          &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// AuthCodeURL returns the authorization URL for the provider
func (p *GenericProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange exchanges an authorization code for an access token
func (p *GenericProvider) Exchange(ctx context.Context, code string) (*Token, error) {
	// Bound the exchange with our own HTTP client timeout.
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

// FetchResourceOwner fetches the resource-owner claims document from the
// provider's API endpoint using the access token.
func (p *GenericProvider) FetchResourceOwner(ctx context.Context, token *Token) (claims.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.resourceOwner, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource owner request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if p.tokenInQuery {
		q := req.URL.Query()
		q.Set("access_token", token.AccessToken)
		req.URL.RawQuery = q.Encode()
	} else {
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resource owner request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resource owner endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxClaimsBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read resource owner response: %w", err)
	}

	return claims.Document(body), nil
}
