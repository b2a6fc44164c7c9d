// Package metrics exposes Prometheus collectors fed by the events published
// on the event bus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/gqlcore/internal/eventbus"
	events "github.com/hanpama/gqlcore/internal/events"
)

const namespace = "gqlcore"

// Metrics holds the collectors of one server.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationCost      prometheus.Histogram
	subscriptionsOpen  prometheus.Gauge
	subscriptionEvents *prometheus.CounterVec
	subscriptionsEnded *prometheus.CounterVec

	grpcCallsTotal   *prometheus.CounterVec
	grpcCallDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests per method and status code",
			},
			[]string{"method", "code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_operations_total",
				Help:      "Total number of GraphQL operations per operation type, final stage and outcome",
			},
			[]string{"operation_type", "stage", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graphql_operation_duration_seconds",
				Help:      "Duration of GraphQL operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation_type"},
		),
		operationCost: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graphql_operation_complexity",
				Help:      "Computed complexity of analyzed GraphQL operations",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		subscriptionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graphql_subscriptions_active",
				Help:      "Number of subscriptions currently established",
			},
		),
		subscriptionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_subscription_events_total",
				Help:      "Total number of subscription events executed per root field",
			},
			[]string{"field"},
		),
		subscriptionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graphql_subscriptions_finished_total",
				Help:      "Total number of finished subscriptions per root field and terminal state",
			},
			[]string{"field", "state"},
		),
		grpcCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_client_calls_total",
				Help:      "Total number of outgoing gRPC calls per service, method and status code",
			},
			[]string{"service", "method", "code"},
		),
		grpcCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "grpc_client_call_duration_seconds",
				Help:      "Duration of outgoing gRPC calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method"},
		),
	}
}

// MustRegister registers every collector with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.operationsTotal,
		m.operationDuration,
		m.operationCost,
		m.subscriptionsOpen,
		m.subscriptionEvents,
		m.subscriptionsEnded,
		m.grpcCallsTotal,
		m.grpcCallDuration,
	)
}

// Subscribe feeds the collectors from the global event bus. It returns a
// function removing the subscriptions again.
func (m *Metrics) Subscribe() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			m.httpRequestsTotal.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.httpRequestDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			outcome := "success"
			if len(e.Errors) > 0 {
				outcome = "error"
			}
			m.operationsTotal.WithLabelValues(e.OperationType, e.Stage, outcome).Inc()
			m.operationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
			if e.Complexity > 0 {
				m.operationCost.Observe(float64(e.Complexity))
			}
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionStart) {
			m.subscriptionsOpen.Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionEvent) {
			m.subscriptionEvents.WithLabelValues(e.Field).Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionFinish) {
			m.subscriptionsOpen.Dec()
			m.subscriptionsEnded.WithLabelValues(e.Field, e.State).Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			m.grpcCallsTotal.WithLabelValues(e.Service, e.Method, e.Code.String()).Inc()
			m.grpcCallDuration.WithLabelValues(e.Service, e.Method).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
