// Package model defines the completion capability consumed by the workflow
// graphs and the message types threaded through them.
//
// Two capabilities exist: plain/tool-augmented chat (ChatModel) and
// schema-constrained generation (StructuredModel). Provider adapters live in
// the subpackages model/openai, model/anthropic and model/google; tests use
// the mocks in this package.
package model

import (
	"context"

	"github.com/clinicoai/clinico-go/schema"
)

// ChatModel is the chat completion capability.
//
// Implementations handle provider authentication, format conversion, a fixed
// request timeout and a small retry budget for transient failures. The
// workflow engine itself never retries; if a Chat call fails after the
// provider's budget, the failure propagates to the execution boundary.
type ChatModel interface {
	// Chat sends the message history to the provider and returns the
	// response. tools, when non-nil, are offered to the model for function
	// calling; the response may then carry pending ToolCalls instead of (or
	// alongside) text.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// StructuredModel is the schema-constrained completion capability.
//
// The output must conform structurally to the descriptor: exactly its field
// names, every value a string. Implementations validate before returning;
// non-conforming output is an error, never silently coerced.
type StructuredModel interface {
	GenerateStructured(ctx context.Context, prompt string, desc *schema.Descriptor) (map[string]string, error)
}

// Standard role constants, aligned with the conventions of the major
// providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// RoleTool marks a tool-result message. Its ToolCallID must equal the ID
	// of the ToolCall it answers; providers reject unmatched IDs.
	RoleTool = "tool"
)

// Message is a single entry in a conversation history.
//
// The history is append-only, with one sanctioned exception: the chat
// agent's reducer may drop the validator's sentinel message before the
// primary completion call (see the agent package).
type Message struct {
	// Role is one of the Role* constants.
	Role string `json:"role"`

	// Content is the message text. May be empty on assistant messages that
	// only carry tool calls.
	Content string `json:"content"`

	// ToolCalls are pending tool invocations requested by the model.
	// Only set on assistant messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a RoleTool message to the ToolCall it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on RoleTool messages.
	Name string `json:"name,omitempty"`
}

// ToolCall is a model-requested external action.
type ToolCall struct {
	// ID is an opaque correlation token generated by the provider. The
	// tool-result message must echo it verbatim; an unmatched ID is a
	// protocol violation.
	ID string `json:"id"`

	// Name identifies which tool to invoke.
	Name string `json:"name"`

	// Args are the call arguments, matching the tool's declared schema.
	Args map[string]any `json:"args,omitempty"`
}

// StringArg returns the named argument as a string, or "" when absent or of
// another type.
func (tc ToolCall) StringArg(key string) string {
	if v, ok := tc.Args[key].(string); ok {
		return v
	}
	return ""
}

// ToolSpec declares a tool the model may call. Schema follows JSON Schema.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ChatOut is a chat completion result: text, pending tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// AssistantMessage converts a completion result into the assistant message
// appended to the history.
func (out ChatOut) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: out.Text, ToolCalls: out.ToolCalls}
}
