// Package otel turns the events published on the event bus into
// OpenTelemetry spans: one per HTTP request, GraphQL operation,
// subscription and outgoing gRPC call, nested by request ID.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	eventbus "github.com/hanpama/gqlcore/internal/eventbus"
	events "github.com/hanpama/gqlcore/internal/events"
	reqid "github.com/hanpama/gqlcore/internal/reqid"
)

// TracerName is the instrumentation scope of every span.
const TracerName = "gqlcore"

// Setup exports spans over OTLP/gRPC to endpoint and subscribes to the
// global event bus. If endpoint is empty, no telemetry is configured. The
// returned function flushes and stops the exporter.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Register(tp.Tracer(TracerName))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Register subscribes span-producing handlers to the global event bus
// using tracer. It returns a function removing them again.
func Register(tracer trace.Tracer) func() {
	s := &subscriber{tracer: tracer}
	return s.register()
}

// operationKey identifies one GraphQL operation of a request. A batched
// HTTP request runs several operations under the same request ID.
type operationKey struct {
	rid   int64
	query string
	name  string
}

type subscriptionKey struct {
	rid   int64
	name  string
	field string
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	gqlSpans  sync.Map // operationKey -> trace.Span
	subSpans  sync.Map // subscriptionKey -> trace.Span
	grpcSpans sync.Map // call -> trace.Span
}

// parent returns ctx carrying the innermost span currently open for rid.
func (s *subscriber) parent(ctx context.Context, rid int64, maps ...*sync.Map) context.Context {
	for _, m := range maps {
		var found trace.Span
		m.Range(func(k, v any) bool {
			if keyRID(k) == rid {
				found = v.(trace.Span)
				return false
			}
			return true
		})
		if found != nil {
			return trace.ContextWithSpan(ctx, found)
		}
	}
	return ctx
}

func keyRID(k any) int64 {
	switch k := k.(type) {
	case int64:
		return k
	case operationKey:
		return k.rid
	case subscriptionKey:
		return k.rid
	}
	return 0
}

func end(m *sync.Map, key any, fn func(trace.Span)) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	fn(span)
	span.End()
}

func (s *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			end(&s.httpSpans, rid, func(span trace.Span) {
				span.SetAttributes(
					semconv.HTTPStatusCodeKey.Int(e.Status),
					attribute.Int("graphql.operation.count", e.Operations),
					attribute.Bool("graphql.batch", e.Batch),
				)
				if e.Status >= 500 {
					span.SetStatus(codes.Error, "")
				}
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, rid, &s.httpSpans), "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.document", e.Query),
			)
			s.gqlSpans.Store(operationKey{rid: rid, query: e.Query, name: e.OperationName}, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			rid, _ := reqid.FromContext(ctx)
			end(&s.gqlSpans, operationKey{rid: rid, query: e.Query, name: e.OperationName}, func(span trace.Span) {
				span.SetAttributes(
					attribute.String("graphql.operation.type", e.OperationType),
					attribute.String("graphql.stage", e.Stage),
					attribute.Int("graphql.complexity", e.Complexity),
					attribute.Int("graphql.error_count", len(e.Errors)),
				)
				if len(e.Errors) > 0 {
					span.SetStatus(codes.Error, e.Errors[0].Error())
				}
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, rid, &s.gqlSpans, &s.httpSpans), "graphql.subscription")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.subscription.field", e.Field),
			)
			s.subSpans.Store(subscriptionKey{rid: rid, name: e.OperationName, field: e.Field}, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionEvent) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.subSpans.Load(subscriptionKey{rid: rid, name: e.OperationName, field: e.Field})
			if !ok {
				return
			}
			v.(trace.Span).AddEvent("graphql.subscription.event", trace.WithAttributes(
				attribute.Int("graphql.subscription.sequence", e.Sequence),
				attribute.Int("graphql.error_count", len(e.Errors)),
				attribute.Int64("graphql.duration_us", e.Duration.Microseconds()),
			))
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionFinish) {
			rid, _ := reqid.FromContext(ctx)
			end(&s.subSpans, subscriptionKey{rid: rid, name: e.OperationName, field: e.Field}, func(span trace.Span) {
				span.SetAttributes(
					attribute.String("graphql.subscription.state", e.State),
					attribute.Int("graphql.subscription.events", e.Events),
				)
				if e.Err != nil {
					span.RecordError(e.Err)
					span.SetStatus(codes.Error, e.Err.Error())
				}
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, rid, &s.gqlSpans, &s.subSpans, &s.httpSpans), "grpc.client",
				trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				semconv.RPCSystemGRPC,
				semconv.RPCServiceKey.String(e.Service),
				semconv.RPCMethodKey.String(e.Method),
				attribute.String("net.peer.name", e.Target),
			)
			s.grpcSpans.Store(e.Call, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			end(&s.grpcSpans, e.Call, func(span trace.Span) {
				span.SetAttributes(semconv.RPCGRPCStatusCodeKey.Int(int(e.Code)))
				if e.Err != nil {
					span.RecordError(e.Err)
					span.SetStatus(codes.Error, e.Err.Error())
				}
			})
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
