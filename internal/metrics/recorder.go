// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aicage"

// Outcome labels shared by the build, pull and version check counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	// ResultSkipped marks a pull avoided because the local digest is current.
	ResultSkipped = "skipped"
	// ResultStale marks a failed pull that fell back to the local image.
	ResultStale = "stale"
)

// Recorder holds the aicage collectors. A nil *Recorder is valid and records
// nothing, so components can take one unconditionally.
type Recorder struct {
	registry      *prometheus.Registry
	decisions     *prometheus.CounterVec
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	pulls         *prometheus.CounterVec
	versionChecks *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "freshness_decisions_total",
			Help:      "Freshness decisions for locally built images, by reason.",
		}, []string{"reason"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Local image builds, by result.",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of local image builds.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulls_total",
			Help:      "Registry image reconciliations, by result.",
		}, []string{"result"}),
		versionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_checks_total",
			Help:      "Agent version check attempts, by environment and result.",
		}, []string{"environment", "result"}),
	}
	r.registry.MustRegister(r.decisions, r.builds, r.buildDuration, r.pulls, r.versionChecks)
	return r
}

// Registry exposes the underlying registry as a Gatherer.
func (r *Recorder) Registry() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Decision counts one freshness decision.
func (r *Recorder) Decision(reason string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(reason).Inc()
}

// Build counts one finished build and observes its duration.
func (r *Recorder) Build(duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.buildDuration.Observe(duration.Seconds())
	r.builds.WithLabelValues(resultOf(err)).Inc()
}

// Pull counts one pull reconciliation with the given result label.
func (r *Recorder) Pull(result string) {
	if r == nil {
		return
	}
	r.pulls.WithLabelValues(result).Inc()
}

// VersionCheck counts one version check attempt in environment.
func (r *Recorder) VersionCheck(environment string, err error) {
	if r == nil {
		return
	}
	r.versionChecks.WithLabelValues(environment, resultOf(err)).Inc()
}

// WriteTextfile writes every collected metric to path in the text exposition
// format. The file is replaced atomically. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
