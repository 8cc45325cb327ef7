package toolexec

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/askiada/sherlock/internal/failure"
)

// Outcomes recorded by Metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics counts invocations per tool and outcome.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the invocation collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sherlock",
			Name:      "tool_invocations_total",
			Help:      "External tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sherlock",
			Name:      "tool_duration_seconds",
			Help:      "Wall time of external tool invocations.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"tool"}),
	}
	for _, c := range []prometheus.Collector{m.invocations, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "unable to register tool metrics")
		}
	}

	return m, nil
}

func outcome(res *Result, err error) string {
	switch {
	case err != nil && failure.KindOf(err) == failure.KindToolTimeout:
		return OutcomeTimeout
	case err != nil:
		return OutcomeError
	case res.Success():
		return OutcomeSuccess
	default:
		return OutcomeFailure
	}
}

// Counter returns the invocation counter of tool and outcome.
func (m *Metrics) Counter(tool, outcome string) prometheus.Counter {
	return m.invocations.WithLabelValues(tool, outcome)
}

func (m *Metrics) observe(cmd Command, res *Result, err error) {
	m.invocations.WithLabelValues(cmd.Tool, outcome(res, err)).Inc()
	if res != nil && !res.StartedAt.IsZero() {
		m.duration.WithLabelValues(cmd.Tool).Observe(res.Duration.Seconds())
	}
}
