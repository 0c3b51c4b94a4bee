package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/pkg/logger"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/identity"
)

const defaultTopK = 5

// ClientConfig configures the REST retrieval client. APIKey wins over
// TokenProvider when both are set.
type ClientConfig struct {
	Endpoint      string
	Index         string
	APIVersion    string
	APIKey        string
	TokenProvider identity.TokenProvider
	CacheTTL      time.Duration
}

// Client queries an Azure AI Search style index over REST.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	results    *cache.Cache
	logger     logger.ILogger
}

func NewClient(cfg ClientConfig, log logger.ILogger) *Client {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-07-01"
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		results:    cache.New(ttl, 2*ttl),
		logger:     log,
	}
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchRequest struct {
	Search                string        `json:"search,omitempty"`
	Top                   int           `json:"top"`
	Select                string        `json:"select"`
	Filter                string        `json:"filter,omitempty"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
	VectorQueries         []vectorQuery `json:"vectorQueries,omitempty"`
}

type searchResponse struct {
	Value []map[string]json.RawMessage `json:"value"`
}

func (c *Client) Query(ctx context.Context, q Query) (*Result, error) {
	body, err := c.buildRequest(q)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	// Identical queries against an unchanged index return the identical
	// ordered result; the short-lived cache also absorbs model retries.
	key := fmt.Sprintf("%x", sha256.Sum256(payload))
	if hit, found := c.results.Get(key); found {
		return hit.(*Result), nil
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s",
		c.cfg.Endpoint, c.cfg.Index, c.cfg.APIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	} else if c.cfg.TokenProvider != nil {
		token, err := c.cfg.TokenProvider.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	defer res.Body.Close()

	resByte, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: code %d, body %s", ErrSchemaMismatch, res.StatusCode, string(resByte))
	default:
		return nil, fmt.Errorf("%w: code %d, body %s", ErrRetrievalUnavailable, res.StatusCode, string(resByte))
	}

	var parsed searchResponse
	if err := json.Unmarshal(resByte, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrRetrievalUnavailable, err)
	}

	result := c.mapResult(parsed, q)
	c.results.Set(key, result, cache.DefaultExpiration)
	return result, nil
}

func (c *Client) buildRequest(q Query) (*searchRequest, error) {
	if q.UseVectorQuery && q.Text == "" && len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector query requested with neither text nor embedding")
	}

	fields := q.Fields
	if fields == (FieldMapping{}) {
		fields = DefaultFieldMapping()
	}
	topK := q.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	body := &searchRequest{
		Search: q.Text,
		Top:    topK,
		Select: strings.Join([]string{fields.Identifier, fields.Content, fields.Title}, ","),
	}

	if len(q.FilterIDs) > 0 {
		body.Filter = fmt.Sprintf("search.in(%s, '%s', ',')", fields.Identifier, strings.Join(q.FilterIDs, ","))
		if body.Search == "" {
			body.Search = "*"
		}
	}

	// Absence of a semantic configuration silently falls back to plain ranking.
	if q.SemanticConfiguration != "" {
		body.QueryType = "semantic"
		body.SemanticConfiguration = q.SemanticConfiguration
	}

	if q.UseVectorQuery {
		vq := vectorQuery{Fields: fields.Embedding, K: 50}
		if len(q.Vector) > 0 {
			vq.Kind = "vector"
			vq.Vector = q.Vector
		} else {
			vq.Kind = "text"
			vq.Text = q.Text
		}
		body.VectorQueries = []vectorQuery{vq}
	}

	return body, nil
}

// mapResult extracts the configured fields from each hit. The service already
// returns hits relevance-descending; index order is preserved for ties.
func (c *Client) mapResult(parsed searchResponse, q Query) *Result {
	fields := q.Fields
	if fields == (FieldMapping{}) {
		fields = DefaultFieldMapping()
	}

	result := &Result{Passages: make([]Passage, 0, len(parsed.Value))}
	for _, doc := range parsed.Value {
		p := Passage{
			ID:      rawString(doc[fields.Identifier]),
			Title:   rawString(doc[fields.Title]),
			Content: rawString(doc[fields.Content]),
		}
		if score, ok := rawFloat(doc["@search.rerankerScore"]); ok {
			p.Score = score
		} else if score, ok := rawFloat(doc["@search.score"]); ok {
			p.Score = score
		}
		result.Passages = append(result.Passages, p)
	}
	return result
}

func rawString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func rawFloat(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
