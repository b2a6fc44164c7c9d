package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

const executorSDL = `
type Query {
  a: String
  b: String
  c: String
  count: Int
  obj: Obj
  objs: [Obj]
  strictObjs: [Obj!]
  requiredName: String!
  named: Named
}

type Mutation {
  first: String
  second: String
}

type Obj {
  name: String
  strict: String!
  inner: Obj
}

interface Named {
  name: String
}

type Cat implements Named {
  name: String
  lives: Int
}

type Dog implements Named {
  name: String
  barks: Boolean
}
`

func delayed(d time.Duration, val any) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		select {
		case <-time.After(d):
			return val, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pattern: Result comparison
func TestExecute_Result(t *testing.T) {
	sch := mustSchema(t, executorSDL)
	name := func(n string) language.PathName { return language.PathName(n) }

	tests := []struct {
		name      string
		query     string
		resolvers map[string]MockResolver
		want      *ExecutionResult
	}{
		{
			name:  "Siblings keep selection order",
			query: "{ c a b }",
			resolvers: map[string]MockResolver{
				"Query.a": delayed(30*time.Millisecond, "A"),
				"Query.b": NewMockValueResolver("B"),
				"Query.c": delayed(10*time.Millisecond, "C"),
			},
			want: &ExecutionResult{Data: Object{{"c", "C"}, {"a", "A"}, {"b", "B"}}},
		},
		{
			name:  "Aliases and typename",
			query: "{ x: a y: a __typename }",
			resolvers: map[string]MockResolver{
				"Query.a": NewMockValueResolver("A"),
			},
			want: &ExecutionResult{Data: Object{{"x", "A"}, {"y", "A"}, {"__typename", "Query"}}},
		},
		{
			name:  "Nested objects through default resolution",
			query: "{ obj { name inner { name __typename } } }",
			resolvers: map[string]MockResolver{
				"Query.obj": NewMockValueResolver(map[string]any{
					"name":  "outer",
					"inner": map[string]any{"name": "inner"},
				}),
			},
			want: &ExecutionResult{Data: Object{
				{"obj", Object{{"name", "outer"}, {"inner", Object{{"name", "inner"}, {"__typename", "Obj"}}}}},
			}},
		},
		{
			name:  "Resolver error nulls the nullable field",
			query: "{ a b }",
			resolvers: map[string]MockResolver{
				"Query.a": NewMockErrorResolver(fmt.Errorf("boom")),
				"Query.b": NewMockValueResolver("B"),
			},
			want: &ExecutionResult{
				Data:   Object{{"a", nil}, {"b", "B"}},
				Errors: language.ErrorList{internalError("boom", language.Path{name("a")}, 1, 3)},
			},
		},
		{
			name:  "Null in non-null field propagates to the nearest nullable ancestor",
			query: "{ obj { name strict } b }",
			resolvers: map[string]MockResolver{
				"Query.obj": NewMockValueResolver(map[string]any{"name": "x"}),
				"Query.b":   NewMockValueResolver("B"),
			},
			want: &ExecutionResult{
				Data: Object{{"obj", nil}, {"b", "B"}},
				Errors: language.ErrorList{internalError("Cannot return null for non-nullable field Obj.strict.",
					language.Path{name("obj"), name("strict")}, 1, 14)},
			},
		},
		{
			name:  "Error in non-null field is reported once",
			query: "{ obj { strict } }",
			resolvers: map[string]MockResolver{
				"Query.obj":  NewMockValueResolver(map[string]any{}),
				"Obj.strict": NewMockErrorResolver(fmt.Errorf("boom")),
			},
			want: &ExecutionResult{
				Data:   Object{{"obj", nil}},
				Errors: language.ErrorList{internalError("boom", language.Path{name("obj"), name("strict")}, 1, 9)},
			},
		},
		{
			name:  "Null in non-null root field nulls data",
			query: "{ requiredName b }",
			resolvers: map[string]MockResolver{
				"Query.requiredName": NewMockValueResolver(nil),
				"Query.b":            NewMockValueResolver("B"),
			},
			want: &ExecutionResult{
				Errors: language.ErrorList{internalError("Cannot return null for non-nullable field Query.requiredName.",
					language.Path{name("requiredName")}, 1, 3)},
			},
		},
		{
			name:  "Null item in list of non-null nulls the list",
			query: "{ strictObjs { name } }",
			resolvers: map[string]MockResolver{
				"Query.strictObjs": NewMockValueResolver([]any{map[string]any{"name": "a"}, nil}),
			},
			want: &ExecutionResult{
				Data: Object{{"strictObjs", nil}},
				Errors: language.ErrorList{internalError("Cannot return null for non-nullable field Query.strictObjs.",
					language.Path{name("strictObjs"), language.PathIndex(1)}, 1, 3)},
			},
		},
		{
			name:  "Item errors carry the list index",
			query: "{ objs { name } }",
			resolvers: map[string]MockResolver{
				"Query.objs": NewMockValueResolver([]any{map[string]any{"idx": 0}, map[string]any{"idx": 1}}),
				"Obj.name": func(ctx context.Context, src any, args map[string]any) (any, error) {
					if src.(map[string]any)["idx"].(int) == 1 {
						return nil, fmt.Errorf("boom")
					}
					return "A", nil
				},
			},
			want: &ExecutionResult{
				Data: Object{{"objs", []any{Object{{"name", "A"}}, Object{{"name", nil}}}}},
				Errors: language.ErrorList{internalError("boom",
					language.Path{name("objs"), language.PathIndex(1), name("name")}, 1, 10)},
			},
		},
		{
			name:  "Typed slices are lists",
			query: "{ objs { name } }",
			resolvers: map[string]MockResolver{
				"Query.objs": NewMockValueResolver([]map[string]any{{"name": "a"}, {"name": "b"}}),
			},
			want: &ExecutionResult{Data: Object{{"objs", []any{Object{{"name", "a"}}, Object{{"name", "b"}}}}}},
		},
		{
			name:  "Non-list value for list field",
			query: "{ objs { name } }",
			resolvers: map[string]MockResolver{
				"Query.objs": NewMockValueResolver("nope"),
			},
			want: &ExecutionResult{
				Data: Object{{"objs", nil}},
				Errors: language.ErrorList{internalError("Expected a list for field Query.objs, got string.",
					language.Path{name("objs")}, 1, 3)},
			},
		},
		{
			name:  "Abstract value completes as its concrete type",
			query: "{ named { name ... on Cat { lives } ... on Dog { barks } } }",
			resolvers: map[string]MockResolver{
				"Query.named": NewMockValueResolver(map[string]any{"__typename": "Dog", "name": "Rex", "barks": true}),
			},
			want: &ExecutionResult{Data: Object{{"named", Object{{"name", "Rex"}, {"barks", true}}}}},
		},
		{
			name:  "Abstract value resolving to a foreign type",
			query: "{ named { name } }",
			resolvers: map[string]MockResolver{
				"Query.named": NewMockValueResolver(map[string]any{"__typename": "Obj"}),
			},
			want: &ExecutionResult{
				Data: Object{{"named", nil}},
				Errors: language.ErrorList{{
					Message:    `Abstract type "Named" must resolve to an Object type at runtime for field Query.named. Got: "Obj".`,
					Path:       language.Path{name("named")},
					Locations:  []language.Location{{Line: 1, Column: 3}},
					Extensions: map[string]any{"code": CodeAbstractTypeResolution},
				}},
			},
		},
		{
			name:  "GraphQL errors keep their extensions",
			query: "{ a }",
			resolvers: map[string]MockResolver{
				"Query.a": NewMockErrorResolver(&gqlerror.Error{Message: "forbidden", Extensions: map[string]any{"code": "FORBIDDEN"}}),
			},
			want: &ExecutionResult{
				Data: Object{{"a", nil}},
				Errors: language.ErrorList{{
					Message:    "forbidden",
					Path:       language.Path{name("a")},
					Locations:  []language.Location{{Line: 1, Column: 3}},
					Extensions: map[string]any{"code": "FORBIDDEN"},
				}},
			},
		},
		{
			name:  "Error lists contribute every error",
			query: "{ a }",
			resolvers: map[string]MockResolver{
				"Query.a": NewMockErrorResolver(gqlerror.List{{Message: "first"}, {Message: "second"}}),
			},
			want: &ExecutionResult{
				Data: Object{{"a", nil}},
				Errors: language.ErrorList{
					{Message: "first", Path: language.Path{name("a")}, Locations: []language.Location{{Line: 1, Column: 3}}},
					{Message: "second", Path: language.Path{name("a")}, Locations: []language.Location{{Line: 1, Column: 3}}},
				},
			},
		},
		{
			name:  "Panics become field errors",
			query: "{ a b }",
			resolvers: map[string]MockResolver{
				"Query.a": func(ctx context.Context, source any, args map[string]any) (any, error) {
					panic("kaboom")
				},
				"Query.b": NewMockValueResolver("B"),
			},
			want: &ExecutionResult{
				Data:   Object{{"a", nil}, {"b", "B"}},
				Errors: language.ErrorList{internalError("resolver panic: kaboom", language.Path{name("a")}, 1, 3)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewMockRuntime(tt.resolvers)
			got := runQuery(t, rt, sch, tt.query)
			requireResult(t, tt.want, got)
		})
	}
}

func TestExecute_AbstractTypeErrorCause(t *testing.T) {
	sch := mustSchema(t, executorSDL)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.named": NewMockValueResolver(struct{}{}),
	})

	res := runQuery(t, rt, sch, "{ named { name } }")
	require.Len(t, res.Errors, 1)
	require.ErrorIs(t, res.Errors[0], ErrAbstractTypeResolution)
	require.Equal(t, CodeAbstractTypeResolution, res.Errors[0].Extensions["code"])
}

func TestExecute_SerializeError(t *testing.T) {
	sch := mustSchema(t, executorSDL)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.count": NewMockValueResolver("many"),
		"Query.a":     NewMockValueResolver("A"),
	})
	rt.SetSerializer(func(val any, typeName string) (any, error) {
		if typeName == "Int" {
			if _, ok := val.(int); !ok {
				return nil, fmt.Errorf("Int cannot represent value: %v", val)
			}
		}
		return val, nil
	})

	res := runQuery(t, rt, sch, "{ count a }")
	requireResult(t, &ExecutionResult{
		Data:   Object{{"count", nil}, {"a", "A"}},
		Errors: language.ErrorList{internalError("Int cannot represent value: many", language.Path{language.PathName("count")}, 1, 3)},
	}, res)
}

func TestExecute_MarshalKeepsOrder(t *testing.T) {
	sch := mustSchema(t, executorSDL)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a":   delayed(20*time.Millisecond, "A"),
		"Query.b":   NewMockValueResolver("B"),
		"Query.obj": NewMockValueResolver(map[string]any{"name": "n", "inner": nil}),
	})

	res := runQuery(t, rt, sch, "{ obj { inner { name } name } b a }")
	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.Equal(t, `{"data":{"obj":{"inner":null,"name":"n"},"b":"B","a":"A"}}`, string(out))
}

func TestExecute_SiblingsRunConcurrently(t *testing.T) {
	sch := mustSchema(t, executorSDL)

	var arrived sync.WaitGroup
	arrived.Add(3)
	allArrived := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allArrived)
	}()
	barrier := func(val string) MockResolver {
		return func(ctx context.Context, source any, args map[string]any) (any, error) {
			arrived.Done()
			select {
			case <-allArrived:
				return val, nil
			case <-time.After(2 * time.Second):
				return nil, fmt.Errorf("siblings did not run concurrently")
			}
		}
	}
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": barrier("A"),
		"Query.b": barrier("B"),
		"Query.c": barrier("C"),
	})

	res := runQuery(t, rt, sch, "{ a b c }")
	requireResult(t, &ExecutionResult{Data: Object{{"a", "A"}, {"b", "B"}, {"c", "C"}}}, res)
}

func TestExecute_ConcurrencyLimit(t *testing.T) {
	sch := mustSchema(t, executorSDL)

	var inFlight, maxInFlight atomic.Int64
	items := make([]any, 8)
	for i := range items {
		items[i] = map[string]any{"idx": i}
	}
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.objs": NewMockValueResolver(items),
		"Obj.name": func(ctx context.Context, source any, args map[string]any) (any, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				cur := maxInFlight.Load()
				if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return fmt.Sprint(source.(map[string]any)["idx"]), nil
		},
	})

	res := runQuery(t, rt, sch, "{ objs { name } }", WithConcurrency(2))
	require.Empty(t, res.Errors)
	require.LessOrEqual(t, maxInFlight.Load(), int64(2))

	objs, _ := res.Data.(Object).Get("objs")
	require.Len(t, objs, 8)
	for i, item := range objs.([]any) {
		got, _ := item.(Object).Get("name")
		require.Equal(t, fmt.Sprint(i), got)
	}
}

func TestExecute_MutationFieldsRunSerially(t *testing.T) {
	sch := mustSchema(t, executorSDL)

	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	step := func(field string, d time.Duration) MockResolver {
		return func(ctx context.Context, source any, args map[string]any) (any, error) {
			record("start " + field)
			time.Sleep(d)
			record("end " + field)
			return field, nil
		}
	}
	rt := NewMockRuntime(map[string]MockResolver{
		"Mutation.first":  step("first", 20*time.Millisecond),
		"Mutation.second": step("second", 0),
	})

	res := runQuery(t, rt, sch, "mutation { first second }")
	requireResult(t, &ExecutionResult{Data: Object{{"first", "first"}, {"second", "second"}}}, res)
	require.Equal(t, []string{"start first", "end first", "start second", "end second"}, events)
}

func TestExecute_Cancellation(t *testing.T) {
	sch := mustSchema(t, executorSDL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := NewMockRuntime(map[string]MockResolver{
		"Query.obj": func(_ context.Context, source any, args map[string]any) (any, error) {
			cancel()
			return map[string]any{"name": "late"}, nil
		},
	})
	exec := NewExecutor(rt, sch)

	res := exec.Execute(ctx, mustPlan(t, sch, "{ obj { name } }", nil), nil)
	require.Nil(t, res.Data)
	require.Len(t, res.Errors, 1)
	require.Equal(t, CodeCancelled, res.Errors[0].Extensions["code"])
	require.True(t, errors.Is(res.Errors[0], context.Canceled))

	// Obj.name never starts once the context is done.
	require.Equal(t, []Call{{ObjectType: "Query", Field: "obj", Args: map[string]any{}}}, rt.GetCalls())
}

func TestExecute_ResolverArguments(t *testing.T) {
	sch := mustSchema(t, `
type Query {
  greet(name: String = "world", times: Int): String
}
`)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.greet": func(ctx context.Context, source any, args map[string]any) (any, error) {
			return fmt.Sprintf("hello %v x%v", args["name"], args["times"]), nil
		},
	})
	exec := NewExecutor(rt, sch)
	plan := mustPlan(t, sch, `query($n: Int) { x: greet(times: $n) y: greet(name: "gopher", times: 2) }`, map[string]any{"n": 3})

	res := exec.Execute(context.Background(), plan, nil)
	requireResult(t, &ExecutionResult{Data: Object{{"x", "hello world x3"}, {"y", "hello gopher x2"}}}, res)
}

// Pattern: Result comparison
func TestExecute_ErrorValuesAndTypedValues(t *testing.T) {
	sch := mustSchema(t, executorSDL+`
extend type Query {
  pets: [Named]
}
`)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.pets": NewMockValueResolver([]any{
			schema.Typed{TypeName: "Cat", Value: struct{ Name string }{Name: "Tom"}},
			&gqlerror.Error{Message: "gone", Extensions: map[string]any{"code": "NOT_FOUND"}},
			fmt.Errorf("broken"),
		}),
	})

	rt.SetTypeResolver(func(value any) (string, error) {
		return "", errors.New("typed values do not need a type resolver")
	})

	res := runQuery(t, rt, sch, "{ pets { __typename name } }")
	requireResult(t, &ExecutionResult{
		Data: Object{{"pets", []any{Object{{"__typename", "Cat"}, {"name", "Tom"}}, nil, nil}}},
		Errors: language.ErrorList{
			{
				Message:    "gone",
				Path:       language.Path{language.PathName("pets"), language.PathIndex(1)},
				Locations:  []language.Location{{Line: 1, Column: 3}},
				Extensions: map[string]any{"code": "NOT_FOUND"},
			},
			internalError("broken", language.Path{language.PathName("pets"), language.PathIndex(2)}, 1, 3),
		},
	}, res)
}

// Pattern: Result comparison
func TestExecute_MergesFieldsAcrossTypeConditions(t *testing.T) {
	sch := mustSchema(t, `
type Query {
  node: Node
  user: User
}

interface Node {
  id: ID!
  best: Item
}

type User implements Node {
  id: ID!
  name: String
  best: Item
}

type Item {
  label: String
  rank: Int
}
`)
	user := map[string]any{
		"__typename": "User",
		"id":         "1",
		"name":       "n",
		"best":       map[string]any{"label": "L", "rank": 2},
	}

	tests := []struct {
		name  string
		query string
		want  *ExecutionResult
	}{
		{
			name:  "Interface parent with narrowing fragment",
			query: `{ node { id best { label } ... on User { id name best { rank } } } }`,
			want: &ExecutionResult{Data: Object{{"node", Object{
				{"id", "1"},
				{"best", Object{{"label", "L"}, {"rank", 2}}},
				{"name", "n"},
			}}}},
		},
		{
			name:  "Object parent with interface fragment",
			query: `{ user { id ... on Node { id } } }`,
			want:  &ExecutionResult{Data: Object{{"user", Object{{"id", "1"}}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewMockRuntime(map[string]MockResolver{
				"Query.node": NewMockValueResolver(user),
				"Query.user": NewMockValueResolver(user),
			})
			requireResult(t, tt.want, runQuery(t, rt, sch, tt.query))

			resolved := map[string]int{}
			for _, c := range rt.GetCalls() {
				resolved[c.ObjectType+"."+c.Field]++
			}
			require.Equal(t, 1, resolved["User.id"], "a merged field resolves once")
			if resolved["User.best"] > 0 {
				require.Equal(t, 1, resolved["User.best"])
			}
		})
	}
}
