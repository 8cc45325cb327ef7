package measure

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMeasure is a DefaultMeasure that also observes every computation
// duration in a histogram labelled by pipeline and step.
type PrometheusMeasure struct {
	*DefaultMeasure
	pipeline  string
	durations *prometheus.HistogramVec
}

// NewPrometheusMeasure registers the step duration histogram on reg. Measures
// of several pipelines can share the same registry.
func NewPrometheusMeasure(reg prometheus.Registerer, pipeline string) (*PrometheusMeasure, error) {
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sherlock",
		Subsystem: "pipeline",
		Name:      "step_duration_seconds",
		Help:      "Computation time of one element in a pipeline step.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"pipeline", "step"})
	err := reg.Register(durations)
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, errors.Wrap(err, "unable to register step durations")
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, errors.Errorf("step durations already registered as %T", already.ExistingCollector)
		}
		durations = existing
	}

	return &PrometheusMeasure{
		DefaultMeasure: NewDefaultMeasure(),
		pipeline:       pipeline,
		durations:      durations,
	}, nil
}

func (m *PrometheusMeasure) AddMetric(name string, concurrent int) Metric {
	mt := &observedMetric{
		Metric:   m.DefaultMeasure.AddMetric(name, concurrent),
		observer: m.durations.WithLabelValues(m.pipeline, name),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Steps[name] = mt

	return mt
}

type observedMetric struct {
	Metric
	observer prometheus.Observer
}

func (mt *observedMetric) AddDuration(elapsed time.Duration) {
	mt.Metric.AddDuration(elapsed)
	mt.observer.Observe(elapsed.Seconds())
}

var _ Measure = (*PrometheusMeasure)(nil)
