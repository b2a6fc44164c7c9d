package main

import (
	"context"
	"io"
	"log"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	eventbus "github.com/hanpama/gqlcore/internal/eventbus"
	events "github.com/hanpama/gqlcore/internal/events"
	reqid "github.com/hanpama/gqlcore/internal/reqid"
)

func newLogger(w io.Writer, verbosity int) logr.Logger {
	stdr.SetVerbosity(verbosity)
	return stdr.New(log.New(w, "", log.LstdFlags)).WithName("gqlcore")
}

// subscribeLogger writes request logs from the global event bus. Failures
// are logged at verbosity 0, successful requests at 1 and gRPC calls at 2.
func subscribeLogger(logger logr.Logger) func() {
	withID := func(ctx context.Context, l logr.Logger) logr.Logger {
		if rid, ok := reqid.FromContext(ctx); ok {
			return l.WithValues("request", rid)
		}
		return l
	}
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			withID(ctx, logger).V(1).Info("http request",
				"method", e.Request.Method, "path", e.Request.URL.Path, "status", e.Status,
				"operations", e.Operations, "batch", e.Batch, "duration", e.Duration)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			l := withID(ctx, logger).WithValues(
				"operation", e.OperationName, "type", e.OperationType, "stage", e.Stage,
				"complexity", e.Complexity, "duration", e.Duration)
			if len(e.Errors) > 0 {
				l.Info("graphql operation failed", "errors", len(e.Errors), "first", e.Errors[0].Error())
				return
			}
			l.V(1).Info("graphql operation")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionFinish) {
			l := withID(ctx, logger).WithValues("field", e.Field, "state", e.State, "events", e.Events, "duration", e.Duration)
			if e.Err != nil {
				l.Error(e.Err, "subscription failed")
				return
			}
			l.V(1).Info("subscription finished")
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			l := withID(ctx, logger).WithValues("service", e.Service, "method", e.Method, "target", e.Target, "code", e.Code.String(), "duration", e.Duration)
			if e.Err != nil {
				l.Error(e.Err, "grpc call failed")
				return
			}
			l.V(2).Info("grpc call")
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
