// Package emit provides pluggable observability for workflow execution.
package emit

// Emitter receives execution events from the engine.
//
// Implementations must be safe for concurrent use (many workflow instances
// share one emitter), must not block execution, and must not panic.
// Observability failures are logged internally, never surfaced to the
// workflow.
type Emitter interface {
	// Emit delivers one event. Errors are the emitter's problem.
	Emit(event Event)
}

// nullEmitter discards all events.
type nullEmitter struct{}

func (nullEmitter) Emit(Event) {}

// Null returns an emitter that discards everything. It is the engine's
// default when no emitter is configured.
func Null() Emitter { return nullEmitter{} }

// multiEmitter fans each event out to several emitters in order.
type multiEmitter struct {
	emitters []Emitter
}

func (m multiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

// Multi combines emitters into one. Nil entries are skipped.
func Multi(emitters ...Emitter) Emitter {
	kept := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return Null()
	case 1:
		return kept[0]
	}
	return multiEmitter{emitters: kept}
}
