package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/maisumh/aisearch-openai-rag-audio/pkg/identity"
)

// UpstreamConfig selects and authenticates the realtime model session.
// APIKey wins over TokenProvider when both are set.
type UpstreamConfig struct {
	Endpoint      string
	Deployment    string
	APIVersion    string
	APIKey        string
	TokenProvider identity.TokenProvider
}

// dialUpstream opens the websocket to the realtime model. requestID, when
// present, is propagated for cross-service correlation.
func dialUpstream(ctx context.Context, cfg UpstreamConfig, requestID string) (*websocket.Conn, error) {
	wsURL, err := upstreamURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if requestID != "" {
		headers.Set("x-ms-client-request-id", requestID)
	}
	if cfg.APIKey != "" {
		headers.Set("api-key", cfg.APIKey)
	} else if cfg.TokenProvider != nil {
		token, err := cfg.TokenProvider.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("upstream token acquisition failed: %w", err)
		}
		headers.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upstream dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("upstream dial failed: %w", err)
	}
	return conn, nil
}

func upstreamURL(cfg UpstreamConfig) (string, error) {
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid upstream endpoint: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid upstream endpoint scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/openai/realtime"

	q := u.Query()
	q.Set("api-version", cfg.APIVersion)
	q.Set("deployment", cfg.Deployment)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
