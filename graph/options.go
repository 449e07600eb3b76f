package graph

import (
	"time"

	"github.com/clinicoai/clinico-go/graph/emit"
)

const (
	defaultMaxSteps = 32

	// defaultMaxVisits allows one entry plus one re-entry per node. Graphs
	// whose routers legitimately revisit a node (an idempotent tool node
	// defending against a routing race) fit inside this; anything beyond is
	// treated as an undeclared cycle.
	defaultMaxVisits = 2
)

// runConfig collects per-Run configuration assembled from RunOptions.
type runConfig struct {
	maxSteps    int
	maxVisits   int
	nodeTimeout time.Duration
	emitter     emit.Emitter
	metrics     *Metrics
	graphName   string
}

func defaultRunConfig() runConfig {
	return runConfig{
		maxSteps:  defaultMaxSteps,
		maxVisits: defaultMaxVisits,
		emitter:   emit.Null(),
		graphName: "graph",
	}
}

// RunOption configures a single execution.
//
// Options follow the functional-option idiom so callers only state what they
// need:
//
//	final, err := compiled.Run(ctx, runID, initial,
//	    graph.WithMaxSteps(16),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stderr, true)),
//	)
type RunOption func(*runConfig)

// WithMaxSteps sets the hard step ceiling for the execution. Zero or
// negative values are ignored. Default: 32.
func WithMaxSteps(n int) RunOption {
	return func(cfg *runConfig) {
		if n > 0 {
			cfg.maxSteps = n
		}
	}
}

// WithMaxVisits sets how many times a single node may run within one
// execution. Default: 2 (one entry, one guarded re-entry).
func WithMaxVisits(n int) RunOption {
	return func(cfg *runConfig) {
		if n > 0 {
			cfg.maxVisits = n
		}
	}
}

// WithNodeTimeout bounds each node invocation with a deadline. Zero disables
// the per-node deadline (the capability layer carries its own timeouts).
func WithNodeTimeout(d time.Duration) RunOption {
	return func(cfg *runConfig) {
		cfg.nodeTimeout = d
	}
}

// WithEmitter routes execution events (run/node start and end, errors) to
// the given emitter. Default: the null emitter.
func WithEmitter(e emit.Emitter) RunOption {
	return func(cfg *runConfig) {
		if e != nil {
			cfg.emitter = e
		}
	}
}

// WithMetrics records run counts and node latencies to the given Prometheus
// metrics set.
func WithMetrics(m *Metrics) RunOption {
	return func(cfg *runConfig) {
		cfg.metrics = m
	}
}

// WithGraphName labels emitted events and metrics with a graph identifier
// (e.g. "chat_agent", "document_pipeline"). Default: "graph".
func WithGraphName(name string) RunOption {
	return func(cfg *runConfig) {
		if name != "" {
			cfg.graphName = name
		}
	}
}
