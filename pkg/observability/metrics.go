package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/weft/pkg/domain"
)

const namespace = "weft"

// Metrics holds the collectors fed by the engine hooks.
type Metrics struct {
	nodeRuns     *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	nodesActive  prometheus.Gauge
	runs         *prometheus.CounterVec
	runsActive   prometheus.Gauge
	stalls       prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Node executions by component and final state.",
		}, []string{"component", "state"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		nodesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_running",
			Help:      "Nodes currently executing.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"outcome"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently in progress.",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_stalls_total",
			Help:      "Runs whose queued nodes could never become ready.",
		}),
	}

	for _, c := range []prometheus.Collector{m.nodeRuns, m.nodeDuration, m.nodesActive, m.runs, m.runsActive, m.stalls} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks updating the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, e *domain.NodeEvent) {
			m.nodesActive.Inc()
		},
		OnNodeFinish: func(_ context.Context, e *domain.NodeEvent) {
			m.nodesActive.Dec()
			m.nodeRuns.WithLabelValues(e.Component, e.State.String()).Inc()
			m.nodeDuration.WithLabelValues(e.Component).Observe(e.Duration.Seconds())
		},
		OnRunStart: func(_ context.Context, _ *domain.RunEvent) {
			m.runsActive.Inc()
		},
		OnRunStall: func(_ context.Context, _ *domain.RunEvent) {
			m.stalls.Inc()
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			m.runsActive.Dec()
			outcome := "completed"
			if e.Type == domain.EventRunStop {
				outcome = "stopped"
			}
			m.runs.WithLabelValues(outcome).Inc()
		},
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
