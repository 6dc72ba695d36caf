package sensing

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const metricsNamespace = "sensing"

type metrics struct {
	generated         *prometheus.CounterVec
	delivered         *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	sessions          *prometheus.GaugeVec
	effectiveInterval *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		generated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "samples_generated_total",
				Help:      "Samples pushed by drivers",
			},
			[]string{"sensor"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "samples_delivered_total",
				Help:      "Samples handed to session callbacks",
			},
			[]string{"sensor"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "samples_dropped_total",
				Help:      "Samples dropped because a session's delivery queue was full",
			},
			[]string{"sensor"},
		),
		sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sessions",
				Help:      "Open sessions per sensor",
			},
			[]string{"sensor"},
		),
		effectiveInterval: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "effective_interval_seconds",
				Help:      "Sampling interval applied to the driver (0=stopped)",
			},
			[]string{"sensor"},
		),
	}
	var errs error
	for _, c := range []prometheus.Collector{m.generated, m.delivered, m.dropped, m.sessions, m.effectiveInterval} {
		errs = multierr.Append(errs, reg.Register(c))
	}
	if errs != nil {
		return nil, errs
	}
	return m, nil
}

// sensorMetrics are the children of every vector for one sensor.
type sensorMetrics struct {
	generated         prometheus.Counter
	delivered         prometheus.Counter
	dropped           prometheus.Counter
	sessions          prometheus.Gauge
	effectiveInterval prometheus.Gauge
}

func (m *metrics) forSensor(name string) *sensorMetrics {
	return &sensorMetrics{
		generated:         m.generated.WithLabelValues(name),
		delivered:         m.delivered.WithLabelValues(name),
		dropped:           m.dropped.WithLabelValues(name),
		sessions:          m.sessions.WithLabelValues(name),
		effectiveInterval: m.effectiveInterval.WithLabelValues(name),
	}
}
