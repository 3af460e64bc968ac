// Package auth acquires bearer credentials via the OAuth2
// client-credentials flow.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/beacx/acx-api-client/pkg/logging"
)

// Config holds the token endpoint settings.
type Config struct {
	// TokenURL is the OAuth2 token endpoint.
	TokenURL string

	// ClientID identifies this client application.
	ClientID string

	// ClientSecret authenticates this client application.
	ClientSecret string

	// Scopes optionally restricts the requested token scope.
	Scopes []string
}

// Source yields bearer credentials, refreshing them when they expire.
type Source struct {
	ts oauth2.TokenSource
}

// NewSource validates cfg and creates a token source. The source caches the
// current token and fetches a new one on expiry.
func NewSource(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client credentials are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	logger := logging.NewLogger("auth")
	logger.Debug().
		Str("token_url", cfg.TokenURL).
		Str("client_id", cfg.ClientID).
		Msg("Token source configured")

	return &Source{ts: cc.TokenSource(ctx)}, nil
}

// Bearer returns the current access token, fetching one if needed. The
// source uses the context it was constructed with for token requests.
// Failure here is fatal to a run: token errors are not retried.
func (s *Source) Bearer() (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	return tok.AccessToken, nil
}

// Client returns an http.Client that injects the bearer token into every
// request.
func (s *Source) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s.ts)
}
