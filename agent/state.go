// Package agent implements the conversational workflow: a validation gate,
// a tool-augmented chat step, a single retrieval round trip and a grounded
// final answer, wired as a compiled graph.
package agent

import (
	"github.com/clinicoai/clinico-go/model"
)

// State is the shared workflow state threaded through the agent graph.
// Nodes return deltas; Reduce merges them into the accumulated state.
type State struct {
	// Messages is the conversation history, append-only except for the
	// single sentinel truncation signalled by TruncateLast.
	Messages []model.Message

	// Context holds retrieved patient snippets. Set at most once per
	// execution; once populated it is authoritative.
	Context []string

	// SessionID scopes retrieval to one consultation.
	SessionID string

	// TruncateLast, when set on a delta, drops the most recent message
	// from the accumulated history before the delta's messages are
	// appended. Used to strip the validator sentinel.
	TruncateLast bool
}

// Reduce merges a node delta into the accumulated state. Messages append
// (after an optional truncation), Context is set-once, SessionID is
// carried from the initial state.
func Reduce(prev, delta State) State {
	next := prev
	next.TruncateLast = false

	if delta.TruncateLast && len(next.Messages) > 0 {
		next.Messages = next.Messages[:len(next.Messages)-1]
	}
	if len(delta.Messages) > 0 {
		merged := make([]model.Message, 0, len(next.Messages)+len(delta.Messages))
		merged = append(merged, next.Messages...)
		merged = append(merged, delta.Messages...)
		next.Messages = merged
	}
	if len(next.Context) == 0 && len(delta.Context) > 0 {
		next.Context = delta.Context
	}
	return next
}

func lastMessage(s State) (model.Message, bool) {
	if len(s.Messages) == 0 {
		return model.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
