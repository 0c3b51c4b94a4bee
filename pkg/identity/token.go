package identity

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider yields bearer tokens for outbound calls when no API key is
// configured. Implementations must be safe for concurrent use.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ClientCredentialsProvider acquires tokens via the OAuth2 client credentials
// flow. The underlying token source caches and refreshes transparently.
type ClientCredentialsProvider struct {
	source oauth2.TokenSource
}

// NewClientCredentials builds a provider from tenant + client credentials.
// An explicit token URL wins; otherwise it is derived from the tenant id.
func NewClientCredentials(tenantID, tokenURL, clientID, clientSecret, scope string) (*ClientCredentialsProvider, error) {
	if tokenURL == "" {
		if tenantID == "" {
			return nil, fmt.Errorf("identity: tenant id or token url is required")
		}
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
	}
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("identity: client id and secret are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
	}

	return &ClientCredentialsProvider{
		source: cc.TokenSource(context.Background()),
	}, nil
}

func (p *ClientCredentialsProvider) Token(ctx context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("identity: token acquisition failed: %w", err)
	}
	return tok.AccessToken, nil
}

// Warm fetches a token eagerly so the first session does not pay the cost.
func (p *ClientCredentialsProvider) Warm(ctx context.Context) error {
	_, err := p.Token(ctx)
	return err
}

// StaticToken is a fixed-token provider, used in tests.
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}
