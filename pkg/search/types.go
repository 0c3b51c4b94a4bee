package search

import (
	"context"
	"errors"
)

var (
	// ErrRetrievalUnavailable marks transport-level failures against the index.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrSchemaMismatch marks field mappings the target index rejected.
	ErrSchemaMismatch = errors.New("search schema mismatch")
)

// FieldMapping names the index fields the gateway reads and queries.
type FieldMapping struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
	Embedding  string `json:"embedding"`
	Title      string `json:"title"`
}

func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Identifier: "chunk_id",
		Content:    "chunk",
		Embedding:  "text_vector",
		Title:      "title",
	}
}

// Query is one grounding request against the index. FilterIDs restricts the
// search to known passage identifiers (used for citation lookups).
type Query struct {
	Text                  string
	Vector                []float32
	Fields                FieldMapping
	SemanticConfiguration string
	UseVectorQuery        bool
	TopK                  int
	FilterIDs             []string
}

// Passage is one ranked hit. ID is stable across identical queries.
type Passage struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Result holds passages in relevance-descending order; ties keep the order of
// first retrieval. An empty result is valid.
type Result struct {
	Passages []Passage `json:"passages"`
}

// Retriever issues grounding queries. Implementations must be safe for
// concurrent use from many sessions.
type Retriever interface {
	Query(ctx context.Context, q Query) (*Result, error)
}
