package executor

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

const subscriptionSDL = `
type Query { a: String }

type Subscription {
  tick(every: Int = 1): Int
}
`

func TestCreateSourceStream(t *testing.T) {
	sch := mustSchema(t, subscriptionSDL)

	t.Run("Opens the root field stream", func(t *testing.T) {
		rt := NewMockRuntime(nil)
		var gotArgs map[string]any
		rt.SetSubscriber("Subscription", "tick", func(ctx context.Context, source any, args map[string]any) (schema.EventStream, error) {
			gotArgs = args
			return &sliceStream{events: []any{1, 2}}, nil
		})
		exec := NewExecutor(rt, sch)

		stream, errs := exec.CreateSourceStream(context.Background(), mustPlan(t, sch, "subscription { tick }", nil), nil)
		require.Empty(t, errs)
		require.Equal(t, map[string]any{"every": 1}, gotArgs)

		first, err := stream.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, first)
		require.NoError(t, stream.Close())
		_, err = stream.Next(context.Background())
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("Subscriber error is located", func(t *testing.T) {
		rt := NewMockRuntime(nil)
		rt.SetSubscriber("Subscription", "tick", func(ctx context.Context, source any, args map[string]any) (schema.EventStream, error) {
			return nil, errors.New("unavailable")
		})
		exec := NewExecutor(rt, sch)

		_, errs := exec.CreateSourceStream(context.Background(), mustPlan(t, sch, "subscription { tick }", nil), nil)
		requireResult(t,
			&ExecutionResult{Errors: language.ErrorList{internalError("unavailable", language.Path{language.PathName("tick")}, 1, 16)}},
			&ExecutionResult{Errors: errs})
	})

	t.Run("Query operations have no stream", func(t *testing.T) {
		exec := NewExecutor(NewMockRuntime(nil), sch)
		_, errs := exec.CreateSourceStream(context.Background(), mustPlan(t, sch, "{ a }", nil), nil)
		require.Len(t, errs, 1)
		require.Equal(t, `Operation "" is not a subscription.`, errs[0].Message)
	})
}
