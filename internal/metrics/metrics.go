// Package metrics records per-run counters and writes them in the Prometheus
// textfile format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"assetcycle/internal/changes"
)

const namespace = "assetcycle"

// Run holds the metrics of a single analyze or execute run. Each run gets a
// fresh registry so the textfile reflects only the latest run.
type Run struct {
	registry         *prometheus.Registry
	proposed         *prometheus.CounterVec
	executions       *prometheus.CounterVec
	campaignFailures prometheus.Counter
	phaseDuration    *prometheus.GaugeVec
	lastRun          *prometheus.GaugeVec
	openChanges      *prometheus.GaugeVec
	interrupted      prometheus.Gauge
}

// NewRun builds an empty run registry.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		proposed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_proposed_total",
			Help:      "Change requests proposed by action and approval mode",
		}, []string{"action", "approval"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Change executions by outcome",
		}, []string{"outcome"}),
		campaignFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_failures_total",
			Help:      "Campaigns whose analysis failed",
		}),
		phaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of the last run phase",
		}, []string{"phase"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the phase last finished",
		}, []string{"phase"}),
		openChanges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "changes",
			Help:      "Change requests in the store by status",
		}, []string{"status"}),
		interrupted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "execution_interrupted",
			Help:      "1 when the last execution sweep ran out of budget",
		}),
	}
	r.registry.MustRegister(
		r.proposed,
		r.executions,
		r.campaignFailures,
		r.phaseDuration,
		r.lastRun,
		r.openChanges,
		r.interrupted,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry { return r.registry }

func (r *Run) ChangeProposed(action changes.Action, mode changes.ApprovalMode) {
	r.proposed.WithLabelValues(string(action), string(mode)).Inc()
}

func (r *Run) ChangeExecuted(outcome changes.Outcome) {
	r.executions.WithLabelValues(string(outcome)).Inc()
}

func (r *Run) CampaignFailed() { r.campaignFailures.Inc() }

// SetStatusCounts replaces the per-status gauge with counts from the store.
func (r *Run) SetStatusCounts(counts map[changes.Status]int) {
	for _, status := range changes.AllStatuses() {
		r.openChanges.WithLabelValues(strings.ToLower(string(status))).Set(float64(counts[status]))
	}
}

func (r *Run) SetInterrupted(interrupted bool) {
	if interrupted {
		r.interrupted.Set(1)
		return
	}
	r.interrupted.Set(0)
}

// PhaseFinished records a phase's duration and completion time.
func (r *Run) PhaseFinished(phase string, started, finished time.Time) {
	r.phaseDuration.WithLabelValues(phase).Set(finished.Sub(started).Seconds())
	r.lastRun.WithLabelValues(phase).Set(float64(finished.Unix()))
}

// WriteTextfile atomically writes the registry to path. An empty path is a
// no-op.
func (r *Run) WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
