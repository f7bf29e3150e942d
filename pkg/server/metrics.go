package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ravi-parthasarathy/aigen/pkg/pipeline"
)

// Metrics counts pipeline and node executions on its own registry.
type Metrics struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	nodeRuns     *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aigen_pipeline_runs_total",
			Help: "Pipeline executions by endpoint and outcome.",
		}, []string{"endpoint", "status"}),
		nodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aigen_node_runs_total",
			Help: "Node executions by node name and outcome.",
		}, []string{"node", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aigen_node_duration_seconds",
			Help:    "Node execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
	}
	m.registry.MustRegister(m.runs, m.nodeRuns, m.nodeDuration)
	return m
}

// NodeHook returns a pipeline.NodeHook feeding the node collectors.
func (m *Metrics) NodeHook() pipeline.NodeHook {
	return func(node string, elapsed time.Duration, err error) {
		m.nodeRuns.WithLabelValues(node, status(err)).Inc()
		m.nodeDuration.WithLabelValues(node).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeRun(endpoint string, err error) {
	m.runs.WithLabelValues(endpoint, status(err)).Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
