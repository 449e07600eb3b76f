package graph

import "context"

// NodeFunc is a unit of work in a workflow graph.
//
// A node receives an immutable snapshot of the current state and returns a
// partial update (a "delta"). The engine merges the delta into the state via
// the graph's Reducer before resolving the next hop. Nodes must not mutate
// the snapshot they receive; all state changes flow through the returned
// delta.
//
// A node should perform at most one external capability call (LLM,
// retrieval). Returning a non-nil error halts the execution; the engine wraps
// it in an *ExecutionError carrying the node ID and the state at failure.
//
// Example:
//
//	classify := func(ctx context.Context, s ChatState) (ChatState, error) {
//	    out, err := llm.Chat(ctx, s.Messages, nil)
//	    if err != nil {
//	        return ChatState{}, err
//	    }
//	    return ChatState{Messages: []model.Message{{Role: model.RoleAssistant, Content: out.Text}}}, nil
//	}
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc resolves the outgoing edge of a node at runtime.
//
// It inspects the merged state and returns the ID of the next node, or END to
// terminate the execution. Returning any other value is a routing violation
// and fails the execution; routers are arbitrary functions, so the engine
// validates every return value against the declared node set.
//
// Routers must be pure: read state, decide, no side effects.
type RouterFunc[S any] func(state S) string

// Reducer merges a node's delta into the previous state, producing the next
// snapshot. It must be deterministic. The reducer owns the semantics of
// "append", "set once", and any sanctioned truncation; nodes only describe
// intent through the delta.
type Reducer[S any] func(prev, delta S) S
