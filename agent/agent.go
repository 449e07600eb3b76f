package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicoai/clinico-go/graph"
	"github.com/clinicoai/clinico-go/model"
	"github.com/clinicoai/clinico-go/retrieval"
)

// Node names in the agent graph.
const (
	nodeValidate = "query_validator"
	nodeChat     = "chatbot"
	nodeTools    = "tool_node"
	nodeAnswer   = "answer_node"
)

// ContextToolName is the retrieval tool exposed to the chat model.
const ContextToolName = "get_relevant_contexts"

var contextToolSpec = model.ToolSpec{
	Name:        ContextToolName,
	Description: "Fetch relevant patient contexts against a query.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The question to search patient context for.",
			},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	},
}

// Agent answers clinical queries through a validated, retrieval-grounded
// conversation graph. Safe for concurrent use: the compiled graph is
// read-only and each Answer call owns its own state.
type Agent struct {
	chat      model.ChatModel
	retriever retrieval.Retriever
	graph     *graph.CompiledGraph[State]
	runOpts   []graph.RunOption
}

// Option configures an Agent.
type Option func(*Agent)

// WithRunOptions sets graph run options applied to every Answer call,
// such as an emitter or metrics.
func WithRunOptions(opts ...graph.RunOption) Option {
	return func(a *Agent) { a.runOpts = append(a.runOpts, opts...) }
}

// New builds and compiles the agent graph.
func New(chat model.ChatModel, retriever retrieval.Retriever, opts ...Option) (*Agent, error) {
	a := &Agent{chat: chat, retriever: retriever}
	for _, opt := range opts {
		opt(a)
	}
	a.runOpts = append(a.runOpts, graph.WithGraphName("chat_agent"))

	g := graph.New(Reduce).
		AddNode(nodeValidate, a.validateNode).
		AddNode(nodeChat, a.chatNode).
		AddNode(nodeTools, a.toolNode).
		AddNode(nodeAnswer, a.answerNode).
		SetEntry(nodeValidate).
		AddRouter(nodeValidate, validateRouter).
		AddRouter(nodeChat, toolRouter).
		AddEdge(nodeTools, nodeAnswer).
		AddEdge(nodeAnswer, graph.END)

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("agent: graph compile failed: %w", err)
	}
	a.graph = compiled
	return a, nil
}

// Answer runs the full agent pipeline for one query and returns the final
// answer text. A rejected query returns the fixed refusal string.
func (a *Agent) Answer(ctx context.Context, sessionID, query string) (string, error) {
	initial := State{
		Messages:  []model.Message{{Role: model.RoleUser, Content: query}},
		SessionID: sessionID,
	}

	final, err := a.graph.Run(ctx, uuid.NewString(), initial, a.runOpts...)
	if err != nil {
		return "", err
	}

	last, ok := lastMessage(final)
	if !ok {
		return "", fmt.Errorf("agent: workflow produced no messages")
	}
	if isRejection(last.Content) {
		return RefusalAnswer, nil
	}
	return last.Content, nil
}

func isRejection(content string) bool {
	return strings.ToUpper(strings.TrimSpace(content)) == rejectSentinel
}

// validateNode classifies the query and appends the one-word sentinel.
func (a *Agent) validateNode(ctx context.Context, state State) (State, error) {
	messages := make([]model.Message, 0, len(state.Messages)+1)
	messages = append(messages, model.Message{Role: model.RoleSystem, Content: validatorPrompt})
	messages = append(messages, state.Messages...)

	out, err := a.chat.Chat(ctx, messages, nil)
	if err != nil {
		return State{}, fmt.Errorf("query validation failed: %w", err)
	}
	return State{Messages: []model.Message{{Role: model.RoleAssistant, Content: out.Text}}}, nil
}

// validateRouter ends the workflow on a rejection sentinel; the fixed
// refusal is substituted at the Answer boundary.
func validateRouter(state State) string {
	last, ok := lastMessage(state)
	if ok && isRejection(last.Content) {
		return graph.END
	}
	return nodeChat
}

// chatNode strips the validator sentinel from the history and invokes the
// tool-augmented completion. The sentinel is workflow metadata and must
// never reach the primary model call.
func (a *Agent) chatNode(ctx context.Context, state State) (State, error) {
	history := state.Messages
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	messages := make([]model.Message, 0, len(history)+1)
	messages = append(messages, model.Message{Role: model.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)

	out, err := a.chat.Chat(ctx, messages, []model.ToolSpec{contextToolSpec})
	if err != nil {
		return State{}, fmt.Errorf("chat completion failed: %w", err)
	}
	return State{TruncateLast: true, Messages: []model.Message{out.AssistantMessage()}}, nil
}

// toolRouter branches after the chat node. Populated context wins over any
// pending tool call: once fetched, context is authoritative for the rest
// of the execution.
func toolRouter(state State) string {
	if len(state.Context) > 0 {
		return nodeAnswer
	}
	if last, ok := lastMessage(state); ok && len(last.ToolCalls) > 0 {
		return nodeTools
	}
	return graph.END
}

// toolNode executes the first pending retrieval call and caches the result.
// No-op when context is already populated.
func (a *Agent) toolNode(ctx context.Context, state State) (State, error) {
	if len(state.Context) > 0 {
		return State{}, nil
	}

	last, ok := lastMessage(state)
	if !ok || len(last.ToolCalls) == 0 {
		return State{}, fmt.Errorf("tool node reached without a pending tool call")
	}
	call := last.ToolCalls[0]
	if call.ID == "" {
		return State{}, fmt.Errorf("tool call %q has no id", call.Name)
	}
	if call.Name != ContextToolName {
		return State{}, fmt.Errorf("unknown tool %q requested", call.Name)
	}

	query := call.StringArg("query")
	snippets, err := a.retriever.Search(ctx, state.SessionID, query)
	if err != nil {
		return State{}, fmt.Errorf("context retrieval failed: %w", err)
	}

	payload, err := json.Marshal(snippets)
	if err != nil {
		return State{}, fmt.Errorf("encode tool result: %w", err)
	}

	return State{
		Context: snippets,
		Messages: []model.Message{{
			Role:       model.RoleTool,
			Name:       call.Name,
			Content:    string(payload),
			ToolCallID: call.ID,
		}},
	}, nil
}

// answerNode presents the cached context as grounding material and produces
// the final answer.
func (a *Agent) answerNode(ctx context.Context, state State) (State, error) {
	grounding := model.Message{
		Role:    model.RoleSystem,
		Content: "Relevant patient context:\n" + retrieval.FormatContext(state.Context),
	}

	messages := make([]model.Message, 0, len(state.Messages)+1)
	messages = append(messages, state.Messages...)
	messages = append(messages, grounding)

	out, err := a.chat.Chat(ctx, messages, nil)
	if err != nil {
		return State{}, fmt.Errorf("grounded answer failed: %w", err)
	}
	return State{Messages: []model.Message{{Role: model.RoleAssistant, Content: out.Text}}}, nil
}
