package api

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports run and node lifecycle counters to a
// Prometheus registry. Labels stay low-cardinality: metrics are labeled by
// graph name and status, never by node name.
type PrometheusObserver struct {
	NoopObserver

	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	nodesFinished *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec
}

// NewPrometheusObserver registers the observer's collectors with reg and
// returns the observer. If reg is nil, prometheus.DefaultRegisterer is used.
// namespace prefixes every metric name; leave it empty for none.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusObserver{
		runsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of graph runs started",
			},
			[]string{"graph"},
		),
		runsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_finished_total",
				Help:      "Total number of graph runs finished, by result",
			},
			[]string{"graph", "result"},
		),
		nodesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_finished_total",
				Help:      "Total number of nodes reaching a terminal state, by status",
			},
			[]string{"graph", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_duration_seconds",
				Help:      "Runner execution time of succeeded nodes in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"graph"},
		),
	}
}

func (p *PrometheusObserver) OnRunStart(ctx context.Context, run RunRef) {
	p.runsStarted.WithLabelValues(run.Graph).Inc()
}

func (p *PrometheusObserver) OnRunCompleted(ctx context.Context, run RunRef, report *RunReport) {
	result := "ok"
	if !report.OK() {
		result = "partial"
	}
	p.runsFinished.WithLabelValues(run.Graph, result).Inc()
}

func (p *PrometheusObserver) OnRunFailed(ctx context.Context, run RunRef, err error) {
	p.runsFinished.WithLabelValues(run.Graph, "failed").Inc()
}

func (p *PrometheusObserver) OnNodeCompleted(ctx context.Context, run RunRef, out *Outcome) {
	switch out.Status {
	case NodeSucceeded:
		p.nodesFinished.WithLabelValues(run.Graph, "succeeded").Inc()
		p.nodeDuration.WithLabelValues(run.Graph).Observe(out.Duration.Seconds())
	case NodeSkipped:
		p.nodesFinished.WithLabelValues(run.Graph, "skipped").Inc()
	case NodeFailed:
		p.nodesFinished.WithLabelValues(run.Graph, "failed").Inc()
	}
}
