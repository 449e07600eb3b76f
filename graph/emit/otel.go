package emit

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns execution events into OpenTelemetry spans.
//
// Run-level events open and close a span per execution; node-level events
// open and close a child span per step. Errors mark the enclosing spans with
// error status.
//
// Setup:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("clinico-go"))
type OTelEmitter struct {
	tracer trace.Tracer

	mu    sync.Mutex
	runs  map[string]spanCtx // keyed by run ID
	nodes map[string]trace.Span
}

type spanCtx struct {
	ctx  context.Context
	span trace.Span
}

// NewOTelEmitter creates an emitter that records spans via tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{
		tracer: tracer,
		runs:   make(map[string]spanCtx),
		nodes:  make(map[string]trace.Span),
	}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Msg {
	case RunStart:
		ctx, span := o.tracer.Start(context.Background(), "workflow.run",
			trace.WithAttributes(
				attribute.String("run_id", event.RunID),
				attribute.String("graph", event.Graph),
			))
		o.runs[event.RunID] = spanCtx{ctx: ctx, span: span}

	case NodeStart:
		parent := context.Background()
		if rc, ok := o.runs[event.RunID]; ok {
			parent = rc.ctx
		}
		_, span := o.tracer.Start(parent, "workflow.node",
			trace.WithAttributes(
				attribute.String("run_id", event.RunID),
				attribute.String("node_id", event.NodeID),
				attribute.Int("step", event.Step),
			))
		o.nodes[o.nodeKey(event)] = span

	case NodeEnd:
		if span, ok := o.nodes[o.nodeKey(event)]; ok {
			if d, ok := event.Meta["duration_ms"]; ok {
				span.SetAttributes(attribute.String("duration_ms", fmt.Sprint(d)))
			}
			span.SetStatus(codes.Ok, "")
			span.End()
			delete(o.nodes, o.nodeKey(event))
		}

	case RunEnd:
		if rc, ok := o.runs[event.RunID]; ok {
			rc.span.SetStatus(codes.Ok, "")
			rc.span.End()
			delete(o.runs, event.RunID)
		}

	case RunError:
		errMsg := "execution failed"
		if e, ok := event.Meta["error"].(string); ok {
			errMsg = e
		}
		if span, ok := o.nodes[o.nodeKey(event)]; ok {
			span.SetStatus(codes.Error, errMsg)
			span.End()
			delete(o.nodes, o.nodeKey(event))
		}
		if rc, ok := o.runs[event.RunID]; ok {
			rc.span.SetStatus(codes.Error, errMsg)
			rc.span.End()
			delete(o.runs, event.RunID)
		}
	}
}

func (o *OTelEmitter) nodeKey(event Event) string {
	return fmt.Sprintf("%s/%d/%s", event.RunID, event.Step, event.NodeID)
}
