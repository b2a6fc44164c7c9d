package subscription

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/gqlcore/internal/eventbus"
	"github.com/hanpama/gqlcore/internal/events"
	executor "github.com/hanpama/gqlcore/internal/executor"
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

const testSDL = `
type Query {
  me: User
}

type Subscription {
  userChanged(id: ID): User
}

type User {
  id: ID
  name: String
}
`

func userEvent(name string) map[string]any {
	return map[string]any{"userChanged": map[string]any{"id": "1", "name": name}}
}

func setup(t *testing.T, subscribe schema.SubscribeFunc) (*executor.Executor, *validator.Plan) {
	t.Helper()
	sch, err := schema.BuildFromSDL(testSDL)
	require.NoError(t, err)
	require.NoError(t, sch.SetSubscriber("Subscription", "userChanged", subscribe))

	doc, err := language.ParseQuery(`subscription OnUser { userChanged(id: "1") { name } }`)
	require.NoError(t, err)
	plan, errs := validator.Validate(sch, doc, "", nil)
	require.Empty(t, errs)
	return executor.NewExecutor(executor.NewRuntime(sch), sch), plan
}

func fromChannel(ch <-chan any, done *<-chan struct{}) schema.SubscribeFunc {
	return func(ctx context.Context, p schema.ResolveParams) (schema.EventStream, error) {
		stream, closed := StreamFromChannel(ch)
		if done != nil {
			*done = closed
		}
		return stream, nil
	}
}

func names(t *testing.T, res *executor.ExecutionResult) any {
	t.Helper()
	require.Empty(t, res.Errors)
	return res.Data.(executor.Object).Map()
}

// Pattern: Result comparison
func TestSubscribe_EachEventExecutesIndependently(t *testing.T) {
	ch := make(chan any, 3)
	ch <- userEvent("e1")
	ch <- userEvent("e2")
	ch <- userEvent("e3")
	close(ch)

	exec, plan := setup(t, fromChannel(ch, nil))
	sub, failed := Subscribe(context.Background(), exec, plan, nil)
	require.Nil(t, failed)
	require.Equal(t, Established, sub.State())

	var got []any
	for {
		res, err := sub.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, Streaming, sub.State())
		got = append(got, names(t, res))
	}

	want := []any{
		map[string]any{"userChanged": map[string]any{"name": "e1"}},
		map[string]any{"userChanged": map[string]any{"name": "e2"}},
		map[string]any{"userChanged": map[string]any{"name": "e3"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("responses mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, Completed, sub.State())
	<-sub.Done()

	_, err := sub.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_CancelStopsFurtherEvents(t *testing.T) {
	ch := make(chan any, 3)
	ch <- userEvent("e1")
	ch <- userEvent("e2")
	ch <- userEvent("e3")

	var closed <-chan struct{}
	exec, plan := setup(t, fromChannel(ch, &closed))
	sub, failed := Subscribe(context.Background(), exec, plan, nil)
	require.Nil(t, failed)

	res, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"userChanged": map[string]any{"name": "e1"}}, names(t, res))

	sub.Cancel()
	sub.Cancel()
	require.Equal(t, Cancelled, sub.State())

	for range 2 {
		res, err = sub.Next(context.Background())
		require.ErrorIs(t, err, ErrCancelled)
		require.Nil(t, res)
	}

	select {
	case <-closed:
	default:
		t.Fatal("source stream was not closed")
	}
	require.Len(t, ch, 2, "events after cancellation must not be consumed")
}

func TestSubscribe_ParentContextCancelsPendingNext(t *testing.T) {
	ch := make(chan any)
	exec, plan := setup(t, fromChannel(ch, nil))

	ctx, cancel := context.WithCancel(context.Background())
	sub, failed := Subscribe(ctx, exec, plan, nil)
	require.Nil(t, failed)

	errc := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not observe cancellation")
	}
	<-sub.Done()
	require.Equal(t, Cancelled, sub.State())
}

func TestSubscribe_CallerContextLeavesSubscriptionOpen(t *testing.T) {
	ch := make(chan any, 1)
	exec, plan := setup(t, fromChannel(ch, nil))
	sub, failed := Subscribe(context.Background(), exec, plan, nil)
	require.Nil(t, failed)
	defer sub.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, Streaming, sub.State())

	ch <- userEvent("late")
	res, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"userChanged": map[string]any{"name": "late"}}, names(t, res))
}

// Pattern: Result comparison
func TestSubscribe_SourceFailureEndsWithErrorResponse(t *testing.T) {
	ch := make(chan any, 2)
	ch <- userEvent("e1")
	ch <- errors.New("broker down")

	exec, plan := setup(t, fromChannel(ch, nil))
	sub, failed := Subscribe(context.Background(), exec, plan, nil)
	require.Nil(t, failed)

	_, err := sub.Next(context.Background())
	require.NoError(t, err)

	res, err := sub.Next(context.Background())
	require.NoError(t, err)
	want := &executor.ExecutionResult{Errors: language.ErrorList{{
		Message:    "Subscription source failed: broker down",
		Extensions: map[string]any{"code": CodeSourceFailed},
	}}}
	if diff := cmp.Diff(want, res, cmpopts.IgnoreFields(gqlerror.Error{}, "Err")); diff != "" {
		t.Fatalf("final response mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, Errored, sub.State())
	require.EqualError(t, sub.Err(), "broker down")

	_, err = sub.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_SubscriberError(t *testing.T) {
	exec, plan := setup(t, func(ctx context.Context, p schema.ResolveParams) (schema.EventStream, error) {
		require.Equal(t, map[string]any{"id": "1"}, p.Args)
		return nil, errors.New("not allowed")
	})

	sub, failed := Subscribe(context.Background(), exec, plan, nil)
	require.Nil(t, sub)
	require.Len(t, failed.Errors, 1)
	require.Equal(t, "not allowed", failed.Errors[0].Message)
	require.Equal(t, language.Path{language.PathName("userChanged")}, failed.Errors[0].Path)
}

func TestSubscribe_PublishesLifecycleEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var mu sync.Mutex
	var log []string
	defer eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionStart) {
		mu.Lock()
		defer mu.Unlock()
		log = append(log, "start "+e.OperationName+" "+e.Field)
	})()
	defer eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionEvent) {
		mu.Lock()
		defer mu.Unlock()
		log = append(log, "event")
	})()
	defer eventbus.Subscribe(func(ctx context.Context, e events.SubscriptionFinish) {
		mu.Lock()
		defer mu.Unlock()
		log = append(log, "finish "+e.State)
		require.Equal(t, 2, e.Events)
	})()

	ch := make(chan any, 2)
	ch <- userEvent("e1")
	ch <- userEvent("e2")
	close(ch)
	exec, plan := setup(t, fromChannel(ch, nil))
	sub, failed := Subscribe(context.Background(), exec, plan, nil)
	require.Nil(t, failed)
	for {
		if _, err := sub.Next(context.Background()); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"start OnUser userChanged", "event", "event", "finish completed"}, log)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "streaming", Streaming.String())
	require.True(t, Cancelled.Terminal())
	require.False(t, Established.Terminal())
}
