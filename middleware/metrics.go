package middleware

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/greg-py/mcp-forge/protocol"
)

// Sample records a single invocation outcome.
type Sample struct {
	Kind       protocol.Kind
	Name       string
	DurationMs float64
	Success    bool
	Timestamp  time.Time
	Error      string
}

// AggregatedMetric is the folded view of all samples for one handler.
type AggregatedMetric struct {
	Kind          protocol.Kind
	Name          string
	CallCount     int64
	SuccessCount  int64
	ErrorCount    int64
	AvgDurationMs float64
	MinDurationMs float64
	MaxDurationMs float64
	LastCallAt    time.Time
}

// metricKey identifies a handler in the aggregator maps.
type metricKey struct {
	kind protocol.Kind
	name string
}

// DefaultMaxSamples bounds raw-sample retention per handler.
const DefaultMaxSamples = 1000

// MetricsAggregator folds invocation samples into per-handler running
// statistics and retains a bounded list of raw samples per handler,
// evicting oldest first.
type MetricsAggregator struct {
	mu         sync.Mutex
	aggregates map[metricKey]*AggregatedMetric
	samples    map[metricKey][]Sample
	maxSamples int
}

// NewMetricsAggregator creates an aggregator retaining up to maxSamples
// raw samples per handler. Non-positive values use DefaultMaxSamples.
func NewMetricsAggregator(maxSamples int) *MetricsAggregator {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &MetricsAggregator{
		aggregates: make(map[metricKey]*AggregatedMetric),
		samples:    make(map[metricKey][]Sample),
		maxSamples: maxSamples,
	}
}

// Record folds a sample into the handler's aggregate. The average is
// recomputed incrementally: avg' = (avg*n + d) / (n+1).
func (m *MetricsAggregator) Record(s Sample) {
	key := metricKey{kind: s.Kind, name: s.Name}

	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.aggregates[key]
	if !ok {
		agg = &AggregatedMetric{
			Kind:          s.Kind,
			Name:          s.Name,
			MinDurationMs: s.DurationMs,
			MaxDurationMs: s.DurationMs,
		}
		m.aggregates[key] = agg
	}

	agg.AvgDurationMs = (agg.AvgDurationMs*float64(agg.CallCount) + s.DurationMs) / float64(agg.CallCount+1)
	agg.CallCount++
	if s.Success {
		agg.SuccessCount++
	} else {
		agg.ErrorCount++
	}
	if s.DurationMs < agg.MinDurationMs {
		agg.MinDurationMs = s.DurationMs
	}
	if s.DurationMs > agg.MaxDurationMs {
		agg.MaxDurationMs = s.DurationMs
	}
	agg.LastCallAt = s.Timestamp

	list := append(m.samples[key], s)
	if len(list) > m.maxSamples {
		list = list[len(list)-m.maxSamples:]
	}
	m.samples[key] = list
}

// Snapshot returns a copy of every handler's aggregate, sorted by kind
// then name for stable output.
func (m *MetricsAggregator) Snapshot() []AggregatedMetric {
	m.mu.Lock()
	out := make([]AggregatedMetric, 0, len(m.aggregates))
	for _, agg := range m.aggregates {
		out = append(out, *agg)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Samples returns a copy of the retained raw samples for one handler,
// oldest first.
func (m *MetricsAggregator) Samples(kind protocol.Kind, name string) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.samples[metricKey{kind: kind, name: name}]
	out := make([]Sample, len(list))
	copy(out, list)
	return out
}

// MetricsOption configures the metrics middleware.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	aggregator *MetricsAggregator
	onMetric   func(Sample)
	maxSamples int
}

// WithMetricsAggregator supplies an externally owned aggregator so the
// host can take snapshots.
func WithMetricsAggregator(a *MetricsAggregator) MetricsOption {
	return func(c *metricsConfig) {
		c.aggregator = a
	}
}

// WithMetricsCallback sets a hook invoked with every recorded sample.
func WithMetricsCallback(fn func(Sample)) MetricsOption {
	return func(c *metricsConfig) {
		c.onMetric = fn
	}
}

// WithMetricsMaxSamples bounds raw-sample retention per handler when the
// middleware owns its aggregator.
func WithMetricsMaxSamples(n int) MetricsOption {
	return func(c *metricsConfig) {
		c.maxSamples = n
	}
}

// Metrics returns middleware that records a sample per invocation. An
// invocation counts as failed when the chain returns an error or the
// result envelope carries the error flag.
func Metrics(opts ...MetricsOption) Middleware {
	cfg := &metricsConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.aggregator == nil {
		cfg.aggregator = NewMetricsAggregator(cfg.maxSamples)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *protocol.Invocation) (*protocol.Result, error) {
			start := time.Now()

			res, err := next(ctx, inv)

			s := Sample{
				Kind:       inv.Kind,
				Name:       inv.Name,
				DurationMs: float64(time.Since(start)) / float64(time.Millisecond),
				Success:    err == nil && (res == nil || !res.IsError),
				Timestamp:  time.Now(),
			}
			if err != nil {
				s.Error = err.Error()
			}

			cfg.aggregator.Record(s)
			if cfg.onMetric != nil {
				cfg.onMetric(s)
			}

			return res, err
		}
	}
}
