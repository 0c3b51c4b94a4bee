package grounding

import "context"

// ResultDirection says where a tool result goes: back into the model session
// or out to the client as a citation payload.
type ResultDirection int

const (
	ToServer ResultDirection = iota
	ToClient
)

// ToolResult is the raw outcome of one tool invocation.
type ToolResult struct {
	Text        string
	Destination ResultDirection
}

// Tool pairs a function schema (advertised to the model) with its target.
// Tools are server-side only; clients never see them.
type Tool struct {
	Schema map[string]interface{}
	Target func(ctx context.Context, args map[string]interface{}) (ToolResult, error)
}

// ToolCallRequest is a model-issued function call intercepted by the session.
type ToolCallRequest struct {
	CallID    string
	Name      string
	Arguments map[string]interface{}
	SessionID string
}

// ToolCallResponse is the protocol-ready envelope for one resolved call.
// Degraded responses carry an explanatory note instead of passages; a tool
// failure must never terminate the session.
type ToolCallResponse struct {
	CallID      string
	Output      string
	Destination ResultDirection
	Degraded    bool
}
