package emit

// Event messages emitted by the engine at each lifecycle point.
const (
	RunStart  = "run_start"
	RunEnd    = "run_end"
	RunError  = "run_error"
	NodeStart = "node_start"
	NodeEnd   = "node_end"
)

// Event is a single observability record from a workflow execution.
type Event struct {
	// RunID identifies the execution that emitted this event.
	RunID string

	// Graph labels which compiled graph is executing
	// (e.g. "chat_agent", "document_pipeline").
	Graph string

	// Step is the 1-indexed step number; zero for run-level events that
	// precede the first node.
	Step int

	// NodeID is the node concerned; empty for run-level events.
	NodeID string

	// Msg is the event kind, one of the constants above.
	Msg string

	// Meta carries event-specific data: "duration_ms", "error".
	Meta map[string]any
}
