package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bjaus/relay"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeAborted   = "aborted"
)

// Metrics holds the relay Prometheus metrics.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	EventsTotal       *prometheus.CounterVec
	InterceptorOffers *prometheus.CounterVec
}

// NewMetrics creates and registers the relay metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_runs_total",
			Help: "Chain runs by outcome.",
		}, []string{"outcome"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_run_duration_seconds",
			Help:    "Chain run duration by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Events dispatched by gateway kind.",
		}, []string{"kind"}),

		InterceptorOffers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_interceptor_offers_total",
			Help: "Interceptor delivery attempts by result.",
		}, []string{"result"}),
	}
}

// StackOptions returns stack hooks that record run and event metrics.
//
//	stack := relay.New(state, metrics.StackOptions()...)
func (m *Metrics) StackOptions() []relay.Option {
	return []relay.Option{
		relay.WithOnStart(func(_ context.Context, ec *relay.EventContext) {
			m.EventsTotal.WithLabelValues(string(ec.Event.Kind())).Inc()
		}),
		relay.WithOnComplete(func(_ context.Context, ec *relay.EventContext, d time.Duration) {
			outcome := OutcomeStopped
			if ec.ReachedEnd() {
				outcome = OutcomeCompleted
			}
			m.observeRun(outcome, d)
		}),
		relay.WithOnAbort(func(_ context.Context, _ *relay.EventContext, _ error, d time.Duration) {
			m.observeRun(OutcomeAborted, d)
		}),
	}
}

// RegistryOptions returns registry hooks that record delivery attempts.
func (m *Metrics) RegistryOptions() []relay.RegistryOption {
	return []relay.RegistryOption{
		relay.WithOnDelivery(func(_ relay.Event, res relay.DeliveryResult) {
			m.InterceptorOffers.WithLabelValues(res.String()).Inc()
		}),
	}
}

func (m *Metrics) observeRun(outcome string, d time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
