package authenticator

import (
	"context"
	"time"

	"github.com/blogem/wiki-sso/claims"
)

// Token represents an access token obtained from the code exchange. It is
// held only for the duration of the callback request and never persisted.
type Token struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// Provider interface abstracts OAuth provider operations
type Provider interface {
	// AuthCodeURL builds the provider authorization URL carrying the given
	// CSRF state token.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token at the
	// provider's token endpoint.
	Exchange(ctx context.Context, code string) (*Token, error)

	// FetchResourceOwner retrieves the resource-owner claims document using
	// the access token.
	FetchResourceOwner(ctx context.Context, token *Token) (claims.Document, error)
}
