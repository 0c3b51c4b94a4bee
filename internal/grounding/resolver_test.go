package grounding

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maisumh/aisearch-openai-rag-audio/pkg/audit"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/search"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

type captureRelay struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureRelay) Emit(event audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureRelay) Close() {}

func (c *captureRelay) byKind(kind audit.Kind) []audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Event
	for _, e := range c.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestResolveEmitsOneCallAndOneResultEvent(t *testing.T) {
	relay := &captureRelay{}
	r := NewResolver(relay, nopLogger{})
	r.Register("echo", Tool{
		Schema: map[string]interface{}{"type": "function", "name": "echo"},
		Target: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			return ToolResult{Text: "pong", Destination: ToServer}, nil
		},
	})

	resp := r.Resolve(context.Background(), ToolCallRequest{
		CallID:    "c1",
		Name:      "echo",
		SessionID: "s1",
	})

	assert.Equal(t, "c1", resp.CallID)
	assert.Equal(t, "pong", resp.Output)
	assert.False(t, resp.Degraded)

	assert.Len(t, relay.byKind(audit.KindToolCall), 1)
	results := relay.byKind(audit.KindToolResult)
	assert.Len(t, results, 1)
	assert.Equal(t, false, results[0].Payload["degraded"])
}

func TestResolveUnknownToolDegrades(t *testing.T) {
	relay := &captureRelay{}
	r := NewResolver(relay, nopLogger{})

	resp := r.Resolve(context.Background(), ToolCallRequest{CallID: "c1", Name: "nope", SessionID: "s1"})

	assert.True(t, resp.Degraded)
	assert.Equal(t, ToServer, resp.Destination)
	assert.NotEmpty(t, resp.Output)
	// Degraded calls still audit both sides.
	assert.Len(t, relay.byKind(audit.KindToolCall), 1)
	assert.Len(t, relay.byKind(audit.KindToolResult), 1)
}

func TestResolveToolErrorDegradesNotFails(t *testing.T) {
	relay := &captureRelay{}
	r := NewResolver(relay, nopLogger{})
	r.Register("search", Tool{
		Schema: map[string]interface{}{"type": "function", "name": "search"},
		Target: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			return ToolResult{}, fmt.Errorf("%w: boom", search.ErrRetrievalUnavailable)
		},
	})

	resp := r.Resolve(context.Background(), ToolCallRequest{CallID: "c1", Name: "search", SessionID: "s1"})

	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Output, "temporarily unavailable")

	results := relay.byKind(audit.KindToolResult)
	assert.Len(t, results, 1)
	assert.Equal(t, true, results[0].Payload["degraded"])
}

type fakeRetriever struct {
	lastQuery search.Query
	result    *search.Result
	err       error
}

func (f *fakeRetriever) Query(ctx context.Context, q search.Query) (*search.Result, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestSearchToolFormatsPassages(t *testing.T) {
	retriever := &fakeRetriever{result: &search.Result{Passages: []search.Passage{
		{ID: "doc1", Content: "First passage"},
		{ID: "doc2", Content: "Second passage"},
	}}}

	r := NewResolver(&captureRelay{}, nopLogger{})
	AttachRagTools(r, retriever, RagToolConfig{UseVectorQuery: true})

	resp := r.Resolve(context.Background(), ToolCallRequest{
		CallID:    "c1",
		Name:      "search",
		Arguments: map[string]interface{}{"query": "passages"},
		SessionID: "s1",
	})

	assert.False(t, resp.Degraded)
	assert.Equal(t, ToServer, resp.Destination)
	assert.Equal(t, "[doc1]: First passage\n-----\n[doc2]: Second passage\n-----\n", resp.Output)
	assert.True(t, retriever.lastQuery.UseVectorQuery)
	assert.Equal(t, "passages", retriever.lastQuery.Text)
}

func TestSearchToolEmptyResultIsValid(t *testing.T) {
	retriever := &fakeRetriever{result: &search.Result{}}
	r := NewResolver(&captureRelay{}, nopLogger{})
	AttachRagTools(r, retriever, RagToolConfig{})

	resp := r.Resolve(context.Background(), ToolCallRequest{
		CallID:    "c1",
		Name:      "search",
		Arguments: map[string]interface{}{"query": "nothing matches"},
		SessionID: "s1",
	})

	assert.False(t, resp.Degraded)
	assert.Equal(t, "", resp.Output)
}

func TestReportGroundingReturnsCitations(t *testing.T) {
	retriever := &fakeRetriever{result: &search.Result{Passages: []search.Passage{
		{ID: "doc1", Title: "Handbook", Content: "Chapter one"},
	}}}
	r := NewResolver(&captureRelay{}, nopLogger{})
	AttachRagTools(r, retriever, RagToolConfig{})

	resp := r.Resolve(context.Background(), ToolCallRequest{
		CallID:    "c1",
		Name:      "report_grounding",
		Arguments: map[string]interface{}{"sources": []interface{}{"doc1"}},
		SessionID: "s1",
	})

	assert.False(t, resp.Degraded)
	assert.Equal(t, ToClient, resp.Destination)
	assert.Equal(t, []string{"doc1"}, retriever.lastQuery.FilterIDs)

	var payload struct {
		Sources []map[string]string `json:"sources"`
	}
	assert.NoError(t, json.Unmarshal([]byte(resp.Output), &payload))
	assert.Len(t, payload.Sources, 1)
	assert.Equal(t, "Handbook", payload.Sources[0]["title"])
}

func TestReportGroundingNoSources(t *testing.T) {
	retriever := &fakeRetriever{}
	r := NewResolver(&captureRelay{}, nopLogger{})
	AttachRagTools(r, retriever, RagToolConfig{})

	resp := r.Resolve(context.Background(), ToolCallRequest{
		CallID:    "c1",
		Name:      "report_grounding",
		Arguments: map[string]interface{}{"sources": []interface{}{}},
		SessionID: "s1",
	})

	assert.False(t, resp.Degraded)
	assert.JSONEq(t, `{"sources":[]}`, resp.Output)
}
