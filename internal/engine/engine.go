// Package engine runs GraphQL requests through the full pipeline: parse,
// validate, analyze, then execute or subscribe.
//
// Parse, validation and analysis failures end a request before any resolver
// runs; their responses carry errors but no data entry. Once execution has
// started the response always carries data, possibly null.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/gqlcore/internal/complexity"
	"github.com/hanpama/gqlcore/internal/eventbus"
	"github.com/hanpama/gqlcore/internal/events"
	executor "github.com/hanpama/gqlcore/internal/executor"
	"github.com/hanpama/gqlcore/internal/introspection"
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	"github.com/hanpama/gqlcore/internal/subscription"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

// CodeOperationNotSupported is reported when Do is asked to run a
// subscription.
const CodeOperationNotSupported = "OPERATION_NOT_SUPPORTED"

// Pipeline stages reported in events.GraphQLFinish.
const (
	StageParse     = "parse"
	StageValidate  = "validate"
	StageAnalyze   = "analyze"
	StageExecute   = "execute"
	StageSubscribe = "subscribe"
)

// Options configure an Engine.
type Options struct {
	// MaxTokens and MaxDepth bound documents at parse time.
	MaxTokens int
	MaxDepth  int
	// MaxComplexity and MaxQueryDepth bound validated operations.
	MaxComplexity int
	MaxQueryDepth int
	// Concurrency bounds resolver calls in flight. Zero means no bound.
	Concurrency int
	// Introspection serves __schema and __type.
	Introspection bool
	// Runtime resolves fields. Nil uses the resolvers attached to the schema.
	Runtime executor.Runtime
	// RootValue is the source of root fields.
	RootValue any
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		MaxTokens:     15000,
		MaxDepth:      100,
		Introspection: true,
	}
}

// WithParseLimits bounds the number of tokens and the selection depth of
// incoming documents. Zero disables a limit.
func WithParseLimits(maxTokens, maxDepth int) Option {
	return func(o *Options) {
		o.MaxTokens = maxTokens
		o.MaxDepth = maxDepth
	}
}

func WithMaxComplexity(n int) Option { return func(o *Options) { o.MaxComplexity = n } }

func WithMaxQueryDepth(n int) Option { return func(o *Options) { o.MaxQueryDepth = n } }

func WithConcurrency(n int) Option { return func(o *Options) { o.Concurrency = n } }

func WithIntrospection(enabled bool) Option { return func(o *Options) { o.Introspection = enabled } }

func WithRuntime(rt executor.Runtime) Option { return func(o *Options) { o.Runtime = rt } }

func WithRootValue(v any) Option { return func(o *Options) { o.RootValue = v } }

// Engine is safe for concurrent use.
type Engine struct {
	opts   Options
	schema *schema.Schema
	exec   *executor.Executor
}

// New prepares s for serving. With introspection enabled the served schema
// is an extension of s; see Schema.
func New(s *schema.Schema, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	served, rt := s, o.Runtime
	if o.Introspection {
		var err error
		if rt == nil {
			served, err = introspection.Extend(s)
		} else {
			var w *introspection.IntrospectionWrapper
			w, err = introspection.Wrap(rt, s)
			if w != nil {
				served, rt = w.Schema, w.Runtime
			}
		}
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	if rt == nil {
		rt = executor.NewRuntime(served)
	}

	return &Engine{
		opts:   o,
		schema: served,
		exec:   executor.NewExecutor(rt, served, executor.WithConcurrency(o.Concurrency)),
	}, nil
}

// Schema returns the schema requests are validated against.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Do runs a query or mutation.
func (e *Engine) Do(ctx context.Context, req Request) *Response {
	t := e.start(ctx, req)
	plan, resp := e.prepare(req, t)
	if resp != nil {
		t.finish(ctx, resp)
		return resp
	}
	if plan.Operation.Operation == language.Subscription {
		resp = &Response{Errors: language.ErrorList{notSupported(plan)}}
		t.finish(ctx, resp)
		return resp
	}

	t.stage = StageExecute
	res := e.exec.Execute(ctx, plan, e.opts.RootValue)
	resp = &Response{Data: res.Data, Errors: res.Errors, Extensions: res.Extensions, Executed: true}
	t.finish(ctx, resp)
	return resp
}

// Subscribe starts a subscription. The returned subscription is nil when the
// request failed, in which case the response holds the errors. Queries and
// mutations are executed at once and reported the same way, with a response
// that has Executed set.
func (e *Engine) Subscribe(ctx context.Context, req Request) (*subscription.Subscription, *Response) {
	t := e.start(ctx, req)
	plan, resp := e.prepare(req, t)
	if resp != nil {
		t.finish(ctx, resp)
		return nil, resp
	}
	if plan.Operation.Operation != language.Subscription {
		t.stage = StageExecute
		res := e.exec.Execute(ctx, plan, e.opts.RootValue)
		resp = &Response{Data: res.Data, Errors: res.Errors, Extensions: res.Extensions, Executed: true}
		t.finish(ctx, resp)
		return nil, resp
	}

	t.stage = StageSubscribe
	sub, res := subscription.Subscribe(ctx, e.exec, plan, e.opts.RootValue)
	if res != nil {
		resp = &Response{Errors: res.Errors, Extensions: res.Extensions}
		t.finish(ctx, resp)
		return nil, resp
	}
	t.finish(ctx, &Response{})
	return sub, nil
}

// prepare parses, validates and analyzes req. A non-nil response reports
// why the request cannot run.
func (e *Engine) prepare(req Request, t *tracker) (*validator.Plan, *Response) {
	doc, err := language.ParseQueryWithLimits(req.Query, language.Limits{
		MaxTokens: e.opts.MaxTokens,
		MaxDepth:  e.opts.MaxDepth,
	})
	if err != nil {
		return nil, &Response{Errors: toErrorList(err)}
	}

	t.stage = StageValidate
	plan, errs := validator.Validate(e.schema, doc, req.OperationName, req.Variables)
	if len(errs) > 0 {
		return nil, &Response{Errors: errs}
	}
	t.operation = string(plan.Operation.Operation)

	t.stage = StageAnalyze
	t.complexity = complexity.Cost(plan)
	if err := complexity.Analyze(plan, complexity.Limits{
		MaxComplexity: e.opts.MaxComplexity,
		MaxDepth:      e.opts.MaxQueryDepth,
	}); err != nil {
		return nil, &Response{Errors: toErrorList(err)}
	}
	return plan, nil
}

func notSupported(plan *validator.Plan) *language.Error {
	err := &gqlerror.Error{
		Message:    "Subscriptions cannot be run as a single request; open a subscription instead.",
		Extensions: map[string]any{"code": CodeOperationNotSupported},
	}
	if pos := plan.Operation.Position; pos != nil {
		err.Locations = []language.Location{{Line: pos.Line, Column: pos.Column}}
	}
	return err
}

func toErrorList(err error) language.ErrorList {
	var list language.ErrorList
	if errors.As(err, &list) {
		return list
	}
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return language.ErrorList{gqlErr}
	}
	return language.ErrorList{{Err: err, Message: err.Error()}}
}

// tracker reports one request on the event bus.
type tracker struct {
	req        Request
	begin      time.Time
	stage      string
	operation  string
	complexity int
}

func (e *Engine) start(ctx context.Context, req Request) *tracker {
	t := &tracker{req: req, begin: time.Now(), stage: StageParse}
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName})
	return t
}

func (t *tracker) finish(ctx context.Context, resp *Response) {
	errs := make([]error, len(resp.Errors))
	for i, err := range resp.Errors {
		errs[i] = err
	}
	eventbus.Publish(context.WithoutCancel(ctx), events.GraphQLFinish{
		Query:         t.req.Query,
		OperationName: t.req.OperationName,
		OperationType: t.operation,
		Stage:         t.stage,
		Complexity:    t.complexity,
		Errors:        errs,
		Duration:      time.Since(t.begin),
	})
}
