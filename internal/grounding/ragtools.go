package grounding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maisumh/aisearch-openai-rag-audio/pkg/search"
)

var searchToolSchema = map[string]interface{}{
	"type": "function",
	"name": "search",
	"description": "Search the knowledge base. The knowledge base is in English, translate to and from English if " +
		"needed. Results are formatted as a source name first in square brackets, followed by the text " +
		"content, and a line with '-----' at the end of each result.",
	"parameters": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query",
			},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	},
}

var reportGroundingToolSchema = map[string]interface{}{
	"type": "function",
	"name": "report_grounding",
	"description": "Report use of a source from the knowledge base as part of an answer (effectively, cite the source). " +
		"Sources appear in square brackets before each knowledge base passage. Always use this tool to cite " +
		"sources when responding with information from the knowledge base.",
	"parameters": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sources": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "List of source names from last statement actually used, do not include the ones not used to formulate a response",
			},
		},
		"required":             []string{"sources"},
		"additionalProperties": false,
	},
}

// RagToolConfig carries the per-index knobs the RAG tools need.
type RagToolConfig struct {
	Fields                search.FieldMapping
	SemanticConfiguration string
	UseVectorQuery        bool
	TopK                  int
}

// AttachRagTools registers the search and report_grounding tools backed by
// the given retriever.
func AttachRagTools(r *Resolver, retriever search.Retriever, cfg RagToolConfig) {
	if cfg.Fields == (search.FieldMapping{}) {
		cfg.Fields = search.DefaultFieldMapping()
	}

	r.Register("search", Tool{
		Schema: searchToolSchema,
		Target: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return ToolResult{}, fmt.Errorf("search tool called without a query")
			}

			result, err := retriever.Query(ctx, search.Query{
				Text:                  query,
				Fields:                cfg.Fields,
				SemanticConfiguration: cfg.SemanticConfiguration,
				UseVectorQuery:        cfg.UseVectorQuery,
				TopK:                  cfg.TopK,
			})
			if err != nil {
				return ToolResult{}, err
			}

			// An empty result is a valid answer, not an error.
			var b strings.Builder
			for _, p := range result.Passages {
				fmt.Fprintf(&b, "[%s]: %s\n-----\n", p.ID, p.Content)
			}
			return ToolResult{Text: b.String(), Destination: ToServer}, nil
		},
	})

	r.Register("report_grounding", Tool{
		Schema: reportGroundingToolSchema,
		Target: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			ids := stringSlice(args["sources"])
			if len(ids) == 0 {
				return citationResult(nil)
			}

			result, err := retriever.Query(ctx, search.Query{
				Fields:    cfg.Fields,
				FilterIDs: ids,
				TopK:      len(ids),
			})
			if err != nil {
				return ToolResult{}, err
			}
			return citationResult(result.Passages)
		},
	})
}

func citationResult(passages []search.Passage) (ToolResult, error) {
	sources := make([]map[string]string, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, map[string]string{
			"chunk_id": p.ID,
			"title":    p.Title,
			"chunk":    p.Content,
		})
	}
	payload, err := json.Marshal(map[string]interface{}{"sources": sources})
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Text: string(payload), Destination: ToClient}, nil
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
