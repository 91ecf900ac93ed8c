package limiter

// Metric names emitted by the limiter.
const (
	MetricCall    = "ratelimit.call"
	MetricLatency = "ratelimit.latency"
)

// Outcome tag values for MetricCall.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeExempt  = "exempt"
	OutcomeNoKey   = "no_key"
	OutcomeError   = "error"
)

// MetricsRecorder receives counters and observations. Implementations
// must be safe for concurrent use. Recording never affects a Decision.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// The limiter installs it when no recorder is given.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}
