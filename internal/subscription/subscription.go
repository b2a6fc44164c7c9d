// Package subscription turns the source event stream of a subscription
// operation into a sequence of executed responses.
//
// A Subscription moves through an explicit set of states:
//
//	Established -> Streaming -> Completed | Cancelled | Errored
//
// Established is entered once the root field's subscriber has returned a
// source stream. Each call to Next pulls one event and executes the plan
// afresh with that event as the root value. The stream ends Completed when
// the source reports io.EOF, Cancelled when Cancel is called or the context
// passed to Subscribe is done, and Errored when the source fails. Errored
// subscriptions emit one final response carrying the failure.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/gqlcore/internal/eventbus"
	"github.com/hanpama/gqlcore/internal/events"
	executor "github.com/hanpama/gqlcore/internal/executor"
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

// CodeSourceFailed is reported in the final response of an Errored subscription.
const CodeSourceFailed = "SUBSCRIPTION_SOURCE_FAILED"

// ErrCancelled is returned by Next once the subscription has been cancelled.
var ErrCancelled = errors.New("subscription cancelled")

type State int32

const (
	Established State = iota
	Streaming
	Completed
	Cancelled
	Errored
)

func (s State) String() string {
	switch s {
	case Established:
		return "established"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further responses can be produced.
func (s State) Terminal() bool { return s >= Completed }

// Subscription is one active subscription. Next must not be called
// concurrently; Cancel, State and Done are safe from any goroutine.
type Subscription struct {
	exec   *executor.Executor
	plan   *validator.Plan
	stream schema.EventStream
	field  string

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	err     error
	done    chan struct{}
	started time.Time
	seq     int
}

// Subscribe opens the source stream of plan's root field. On failure the
// returned result holds the errors and no Subscription is created.
func Subscribe(ctx context.Context, exec *executor.Executor, plan *validator.Plan, rootValue any) (*Subscription, *executor.ExecutionResult) {
	subCtx, cancel := context.WithCancel(ctx)
	stream, errs := exec.CreateSourceStream(subCtx, plan, rootValue)
	if len(errs) > 0 {
		cancel()
		return nil, &executor.ExecutionResult{Errors: errs}
	}

	s := &Subscription{
		exec:    exec,
		plan:    plan,
		stream:  stream,
		field:   rootField(plan),
		parent:  ctx,
		ctx:     subCtx,
		cancel:  cancel,
		state:   Established,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	context.AfterFunc(subCtx, func() { s.finish(Cancelled, nil) })

	eventbus.Publish(ctx, events.SubscriptionStart{OperationName: plan.Operation.Name, Field: s.field})
	return s, nil
}

func rootField(plan *validator.Plan) string {
	for _, sel := range plan.SelectionSet {
		if sel.Definition != nil {
			return sel.Name
		}
	}
	return ""
}

// Next waits for the next source event and returns its executed response.
// It returns io.EOF after the stream completed or errored, ErrCancelled
// after cancellation, and ctx.Err() if ctx is done first; the last leaves
// the subscription usable.
func (s *Subscription) Next(ctx context.Context) (*executor.ExecutionResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	waitCtx, stopWait := context.WithCancel(ctx)
	unlink := context.AfterFunc(s.ctx, stopWait)
	event, err := s.stream.Next(waitCtx)
	unlink()
	stopWait()

	if s.ctx.Err() != nil {
		s.finish(Cancelled, nil)
		return nil, ErrCancelled
	}
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			s.finish(Completed, nil)
			return nil, io.EOF
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		s.finish(Errored, err)
		return &executor.ExecutionResult{Errors: language.ErrorList{sourceError(err)}}, nil
	}

	start := time.Now()
	res := s.exec.Execute(s.ctx, s.plan, event)
	if s.ctx.Err() != nil {
		s.finish(Cancelled, nil)
		return nil, ErrCancelled
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	eventbus.Publish(s.parent, events.SubscriptionEvent{
		OperationName: s.plan.Operation.Name,
		Field:         s.field,
		Sequence:      seq,
		Errors:        errorsOf(res.Errors),
		Duration:      time.Since(start),
	})
	return res, nil
}

func (s *Subscription) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Cancelled:
		return ErrCancelled
	case Completed, Errored:
		return io.EOF
	}
	s.state = Streaming
	return nil
}

// Cancel stops the subscription and closes its source stream. It is
// idempotent and does nothing once the subscription has ended.
func (s *Subscription) Cancel() {
	s.finish(Cancelled, nil)
}

// State returns the current state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the source failure of an Errored subscription.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the subscription reaches a terminal state.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) finish(state State, err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.err = err
	n := s.seq
	close(s.done)
	s.mu.Unlock()

	s.cancel()
	_ = s.stream.Close()

	eventbus.Publish(context.WithoutCancel(s.parent), events.SubscriptionFinish{
		OperationName: s.plan.Operation.Name,
		Field:         s.field,
		State:         state.String(),
		Events:        n,
		Err:           err,
		Duration:      time.Since(s.started),
	})
}

func sourceError(err error) *language.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	return &gqlerror.Error{
		Err:        err,
		Message:    fmt.Sprintf("Subscription source failed: %v", err),
		Extensions: map[string]any{"code": CodeSourceFailed},
	}
}

func errorsOf(list language.ErrorList) []error {
	if len(list) == 0 {
		return nil
	}
	out := make([]error, len(list))
	for i, e := range list {
		out[i] = e
	}
	return out
}
