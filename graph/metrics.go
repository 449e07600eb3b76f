package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus metrics for workflow execution, namespaced
// under "clinico".
//
// Metrics:
//   - clinico_workflow_runs_total{graph,status}: completed executions,
//     status is "success" or "error"
//   - clinico_workflow_run_duration_ms{graph}: end-to-end run latency
//   - clinico_node_duration_ms{graph,node}: per-node latency
//   - clinico_workflow_steps{graph}: steps taken by completed runs
//
// Register once per process and share across graphs:
//
//	metrics := graph.NewMetrics(prometheus.DefaultRegisterer)
//	final, err := compiled.Run(ctx, runID, initial, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.Handler())
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	nodeLatency *prometheus.HistogramVec
	steps       *prometheus.HistogramVec
}

// NewMetrics creates and registers the workflow metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinico",
			Name:      "workflow_runs_total",
			Help:      "Completed workflow executions by graph and status.",
		}, []string{"graph", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinico",
			Name:      "workflow_run_duration_ms",
			Help:      "End-to-end workflow execution latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"graph"}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinico",
			Name:      "node_duration_ms",
			Help:      "Node execution latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"graph", "node"}),
		steps: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinico",
			Name:      "workflow_steps",
			Help:      "Steps taken by completed workflow executions.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 12, 16, 32},
		}, []string{"graph"}),
	}
}

func (m *Metrics) observeRun(graphName, status string, d time.Duration) {
	m.runs.WithLabelValues(graphName, status).Inc()
	if status == "success" {
		m.runDuration.WithLabelValues(graphName).Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) observeNode(graphName, nodeID string, d time.Duration) {
	m.nodeLatency.WithLabelValues(graphName, nodeID).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) observeSteps(graphName string, steps int) {
	m.steps.WithLabelValues(graphName).Observe(float64(steps))
}
