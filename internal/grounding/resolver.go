package grounding

import (
	"context"
	"fmt"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/pkg/logger"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/audit"
)

const degradedNote = "Could not retrieve context: the knowledge base is temporarily unavailable. Answer from general knowledge and say so."

// Resolver maps model-issued tool calls onto registered tools. It never
// propagates tool failure upstream: errors become degraded responses.
type Resolver struct {
	tools  map[string]Tool
	relay  audit.Relay
	logger logger.ILogger
}

func NewResolver(relay audit.Relay, log logger.ILogger) *Resolver {
	return &Resolver{
		tools:  make(map[string]Tool),
		relay:  relay,
		logger: log,
	}
}

func (r *Resolver) Register(name string, tool Tool) {
	r.tools[name] = tool
}

// Schemas returns the function schemas to advertise in session.update.
func (r *Resolver) Schemas() []map[string]interface{} {
	schemas := make([]map[string]interface{}, 0, len(r.tools))
	for _, tool := range r.tools {
		schemas = append(schemas, tool.Schema)
	}
	return schemas
}

func (r *Resolver) HasTools() bool {
	return len(r.tools) > 0
}

// Resolve runs one tool call. Success or degraded, it emits exactly one
// tool-call and one tool-result audit event.
func (r *Resolver) Resolve(ctx context.Context, req ToolCallRequest) ToolCallResponse {
	r.relay.Emit(audit.NewEvent(audit.KindToolCall, req.SessionID, map[string]interface{}{
		"call_id":   req.CallID,
		"tool":      req.Name,
		"arguments": req.Arguments,
	}))

	resp := r.resolve(ctx, req)

	r.relay.Emit(audit.NewEvent(audit.KindToolResult, req.SessionID, map[string]interface{}{
		"call_id":  req.CallID,
		"tool":     req.Name,
		"degraded": resp.Degraded,
		"size":     len(resp.Output),
	}))

	return resp
}

func (r *Resolver) resolve(ctx context.Context, req ToolCallRequest) ToolCallResponse {
	tool, ok := r.tools[req.Name]
	if !ok {
		r.logger.Warn("Resolver", "Unknown tool requested", map[string]interface{}{
			"tool":       req.Name,
			"session_id": req.SessionID,
		})
		return degraded(req, fmt.Sprintf("Unknown tool %q.", req.Name))
	}

	result, err := tool.Target(ctx, req.Arguments)
	if err != nil {
		r.logger.Warn("Resolver", "Tool failed, returning degraded grounding", map[string]interface{}{
			"tool":       req.Name,
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		return degraded(req, degradedNote)
	}

	return ToolCallResponse{
		CallID:      req.CallID,
		Output:      result.Text,
		Destination: result.Destination,
	}
}

func degraded(req ToolCallRequest, note string) ToolCallResponse {
	return ToolCallResponse{
		CallID:      req.CallID,
		Output:      note,
		Destination: ToServer,
		Degraded:    true,
	}
}
