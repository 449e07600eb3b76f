package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicoai/clinico-go/graph/emit"
)

// Run executes the graph from its entry node until END is routed to, the
// step ceiling is exceeded, the context is cancelled, or a node fails.
//
// Each step:
//  1. invoke the current node with the current state snapshot
//  2. merge the returned delta via the reducer
//  3. resolve the outgoing edge (the node's router over the merged state,
//     or its fixed edge) and validate the target
//  4. advance
//
// The final merged state is returned on success. Any failure is wrapped in
// *ExecutionError carrying the node ID and the state at failure. The engine
// never retries a node: retry budgets belong to the completion/retrieval
// capabilities, not the plan executor.
//
// Run is safe to call concurrently on the same CompiledGraph; every
// execution owns its state and its visit bookkeeping.
func (cg *CompiledGraph[S]) Run(ctx context.Context, runID string, initial S, opts ...RunOption) (S, error) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	state := initial
	current := cg.entry
	visits := make(map[string]int, len(cg.nodes))
	step := 0
	start := time.Now()

	cfg.emitter.Emit(emit.Event{RunID: runID, Graph: cfg.graphName, Msg: emit.RunStart})

	fail := func(nodeID string, err error) (S, error) {
		wrapped := &ExecutionError{NodeID: nodeID, RunID: runID, State: state, Err: err}
		cfg.emitter.Emit(emit.Event{
			RunID: runID, Graph: cfg.graphName, Step: step, NodeID: nodeID,
			Msg: emit.RunError, Meta: map[string]any{"error": err.Error()},
		})
		if cfg.metrics != nil {
			cfg.metrics.observeRun(cfg.graphName, "error", time.Since(start))
		}
		var zero S
		return zero, wrapped
	}

	for {
		step++
		if step > cfg.maxSteps {
			return fail(current, fmt.Errorf("%w (%d)", ErrMaxSteps, cfg.maxSteps))
		}
		if err := ctx.Err(); err != nil {
			return fail(current, err)
		}

		node, ok := cg.nodes[current]
		if !ok {
			// Unreachable after Compile unless a router slipped through;
			// validated again below, but guard the entry as well.
			return fail(current, fmt.Errorf("%w: %q", ErrNodeNotFound, current))
		}

		visits[current]++
		if visits[current] > cfg.maxVisits {
			return fail(current, fmt.Errorf("%w: %q visited %d times", ErrRevisitLimit, current, visits[current]))
		}

		cfg.emitter.Emit(emit.Event{RunID: runID, Graph: cfg.graphName, Step: step, NodeID: current, Msg: emit.NodeStart})
		nodeStart := time.Now()

		delta, err := cg.invoke(ctx, node, state, cfg.nodeTimeout)

		elapsed := time.Since(nodeStart)
		if cfg.metrics != nil {
			cfg.metrics.observeNode(cfg.graphName, current, elapsed)
		}
		if err != nil {
			return fail(current, err)
		}

		state = cg.reducer(state, delta)

		cfg.emitter.Emit(emit.Event{
			RunID: runID, Graph: cfg.graphName, Step: step, NodeID: current,
			Msg: emit.NodeEnd, Meta: map[string]any{"duration_ms": elapsed.Milliseconds()},
		})

		next, err := cg.route(current, state)
		if err != nil {
			return fail(current, err)
		}
		if next == END {
			cfg.emitter.Emit(emit.Event{RunID: runID, Graph: cfg.graphName, Step: step, Msg: emit.RunEnd})
			if cfg.metrics != nil {
				cfg.metrics.observeRun(cfg.graphName, "success", time.Since(start))
				cfg.metrics.observeSteps(cfg.graphName, step)
			}
			return state, nil
		}
		current = next
	}
}

// invoke runs a single node, applying the per-node deadline when configured.
func (cg *CompiledGraph[S]) invoke(ctx context.Context, node NodeFunc[S], state S, timeout time.Duration) (S, error) {
	if timeout <= 0 {
		return node(ctx, state)
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return node(nodeCtx, state)
}

// route resolves the outgoing edge of from against the merged state and
// validates the target. A router returning anything other than a declared
// node or END is a protocol violation.
func (cg *CompiledGraph[S]) route(from string, state S) (string, error) {
	if router, ok := cg.routers[from]; ok {
		target := router(state)
		if target == END {
			return END, nil
		}
		if _, declared := cg.nodes[target]; !declared {
			return "", fmt.Errorf("%w: %q -> %q", ErrUndeclaredRoute, from, target)
		}
		return target, nil
	}
	// Compile guarantees a fixed edge exists when no router does.
	return cg.edges[from], nil
}
