package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to a writer, either as human-readable text or as
// one JSON object per line (JSONL).
//
// Text:
//
//	[node_end] run=run-001 graph=chat_agent step=3 node=tools meta={"duration_ms":412}
//
// JSON:
//
//	{"run_id":"run-001","graph":"chat_agent","step":3,"node_id":"tools","msg":"node_end","meta":{"duration_ms":412}}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID  string         `json:"run_id"`
		Graph  string         `json:"graph"`
		Step   int            `json:"step"`
		NodeID string         `json:"node_id"`
		Msg    string         `json:"msg"`
		Meta   map[string]any `json:"meta,omitempty"`
	}{event.RunID, event.Graph, event.Step, event.NodeID, event.Msg, event.Meta})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] run=%s graph=%s step=%d node=%s",
		event.Msg, event.RunID, event.Graph, event.Step, event.NodeID)
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	fmt.Fprint(l.writer, "\n")
}
