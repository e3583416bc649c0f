// Package metrics records bridge activity with Prometheus collectors.
//
// The fuzzer process exposes no HTTP endpoint, so the registry is written in
// text exposition format to a file (node_exporter textfile collector style)
// when the session ends or the process aborts.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/entities"
	"github.com/reglet-dev/aflpp-mutator-sdk/domain/ports"
)

const namespace = "aflpp_go_mutator"

// Recorder implements ports.Recorder on a private Prometheus registry.
type Recorder struct {
	registry     *prometheus.Registry
	calls        *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	replacements prometheus.Histogram
	sessions     prometheus.Gauge
	textfile     string
	mu           sync.Mutex
}

var _ ports.Recorder = (*Recorder)(nil)

// Option configures a Recorder.
type Option func(*Recorder)

// WithTextfile makes Flush write the registry to path.
func WithTextfile(path string) Option {
	return func(r *Recorder) {
		r.textfile = path
	}
}

// New creates a Recorder with its collectors registered.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of host entry point invocations.",
		}, []string{"entry_point"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fuzz_outcomes_total",
			Help:      "Total number of fuzz results by outcome.",
		}, []string{"outcome"}),
		replacements: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replacement_bytes",
			Help:      "Size of replacement buffers returned to the host.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of live mutator sessions.",
		}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.registry.MustRegister(r.calls, r.outcomes, r.replacements, r.sessions)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Call implements ports.Recorder.
func (r *Recorder) Call(entryPoint string) {
	r.calls.WithLabelValues(entryPoint).Inc()
}

// Outcome implements ports.Recorder. Only new buffers feed the size
// histogram; in-place sizes are the host's own input length.
func (r *Recorder) Outcome(kind entities.OutcomeKind, size int) {
	r.outcomes.WithLabelValues(kind.String()).Inc()
	if kind == entities.OutcomeNewBuffer {
		r.replacements.Observe(float64(size))
	}
}

// SessionOpened implements ports.Recorder.
func (r *Recorder) SessionOpened() {
	r.sessions.Inc()
}

// SessionClosed implements ports.Recorder.
func (r *Recorder) SessionClosed() {
	r.sessions.Dec()
}

// Flush writes the registry to the configured textfile, if any.
func (r *Recorder) Flush() error {
	if r.textfile == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := prometheus.WriteToTextfile(r.textfile, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Nop discards everything.
type Nop struct{}

var _ ports.Recorder = Nop{}

func (Nop) Call(string)                       {}
func (Nop) Outcome(entities.OutcomeKind, int) {}
func (Nop) SessionOpened()                    {}
func (Nop) SessionClosed()                    {}
func (Nop) Flush() error                      { return nil }
