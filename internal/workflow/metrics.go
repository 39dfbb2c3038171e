package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for workflow execution.
type Metrics struct {
	runsTotal    *prometheus.CounterVec
	runsActive   *prometheus.GaugeVec
	stepDuration *prometheus.HistogramVec
	stepRetries  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratus_workflow_runs_total",
				Help: "Total number of finished workflow runs",
			},
			[]string{"workflow", "status"},
		),
		runsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stratus_workflow_runs_active",
				Help: "Workflow runs currently executing",
			},
			[]string{"workflow"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratus_workflow_step_duration_milliseconds",
				Help:    "Step execution time in milliseconds, retries included",
				Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
			},
			[]string{"workflow", "step", "status"},
		),
		stepRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratus_workflow_step_retries_total",
				Help: "Step attempts beyond the first",
			},
			[]string{"workflow", "step"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.runsTotal, m.runsActive, m.stepDuration, m.stepRetries)
	}
	return m
}

func (m *Metrics) runStarted(wf string) {
	if m == nil {
		return
	}
	m.runsActive.WithLabelValues(wf).Inc()
}

func (m *Metrics) runFinished(wf, status string) {
	if m == nil {
		return
	}
	m.runsActive.WithLabelValues(wf).Dec()
	m.runsTotal.WithLabelValues(wf, status).Inc()
}

func (m *Metrics) stepFinished(wf, step, status string, d time.Duration, attempts int) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(wf, step, status).Observe(float64(d.Milliseconds()))
	if attempts > 1 {
		m.stepRetries.WithLabelValues(wf, step).Add(float64(attempts - 1))
	}
}
