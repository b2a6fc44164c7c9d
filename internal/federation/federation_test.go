package federation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	executor "github.com/hanpama/gqlcore/internal/executor"
	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

const productsSDL = `
type Query {
  topProducts: [Product]
}

type Product @key(fields: "upc") {
  upc: String!
  name: String
}

type Review @key(fields: "id") {
  id: ID!
  body: String
}

type Warehouse @key(fields: "id", resolvable: false) {
  id: ID!
}
`

const entitiesQuery = `query($reps: [_Any!]!) { _entities(representations: $reps) { __typename ... on Product { upc name } } }`

func buildProducts(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := BuildFromSDL(productsSDL)
	require.NoError(t, err)
	require.NoError(t, sch.SetReferenceResolver("Product", func(ctx context.Context, rep map[string]any) (any, error) {
		return map[string]any{"upc": rep["upc"], "name": "Table"}, nil
	}))
	return sch
}

func execute(t *testing.T, rt executor.Runtime, sch *schema.Schema, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	plan, errs := validator.Validate(sch, doc, "", vars)
	require.Empty(t, errs)
	return executor.NewExecutor(rt, sch).Execute(context.Background(), plan, nil)
}

// Pattern: Result comparison
func TestEntities_PartialFailure(t *testing.T) {
	sch := buildProducts(t)
	vars := map[string]any{"reps": []any{
		map[string]any{"__typename": "Product", "upc": "1"},
		map[string]any{"__typename": "Review", "id": "2"},
	}}

	got := execute(t, executor.NewRuntime(sch), sch, entitiesQuery, vars)

	want := &executor.ExecutionResult{
		Data: executor.Object{{Key: "_entities", Value: []any{
			executor.Object{{Key: "__typename", Value: "Product"}, {Key: "upc", Value: "1"}, {Key: "name", Value: "Table"}},
			nil,
		}}},
		Errors: language.ErrorList{{
			Message:    `Type "Review" has no reference resolver.`,
			Path:       language.Path{language.PathName("_entities"), language.PathIndex(1)},
			Locations:  []language.Location{{Line: 1, Column: 26}},
			Extensions: map[string]any{"code": CodeEntityResolution},
		}},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(gqlerror.Error{}, "Err")); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
	require.ErrorIs(t, got.Errors[0], ErrEntityResolution)
}

func TestEntities_WrappedRuntime(t *testing.T) {
	sch := buildProducts(t)
	rt := Wrap(executor.NewMockRuntime(nil), sch)

	got := execute(t, rt, sch, `{ _entities(representations: [{__typename: "Product", upc: "9"}]) { ... on Product { name } } _service { sdl } }`, nil)
	require.Empty(t, got.Errors)

	data := got.Data.(executor.Object).Map()
	require.Equal(t, []any{map[string]any{"name": "Table"}}, data["_entities"])
	sdl := data["_service"].(map[string]any)["sdl"].(string)
	require.Contains(t, sdl, "type Product")
}

// Pattern: Result comparison
func TestResolveEntities(t *testing.T) {
	sch := buildProducts(t)
	require.NoError(t, sch.SetReferenceResolver("Review", func(ctx context.Context, rep map[string]any) (any, error) {
		switch rep["id"] {
		case "missing":
			return nil, nil
		case "denied":
			return nil, &gqlerror.Error{Message: "denied", Extensions: map[string]any{"code": "FORBIDDEN"}}
		case "panic":
			panic("boom")
		}
		return nil, errors.New("backend down")
	}))

	tests := []struct {
		name string
		rep  any
		want any
	}{
		{
			name: "Resolved entity",
			rep:  map[string]any{"__typename": "Product", "upc": "1"},
			want: schema.Typed{TypeName: "Product", Value: map[string]any{"upc": "1", "name": "Table"}},
		},
		{
			name: "Resolver returns nothing",
			rep:  map[string]any{"__typename": "Review", "id": "missing"},
			want: nil,
		},
		{
			name: "GraphQL error passes through",
			rep:  map[string]any{"__typename": "Review", "id": "denied"},
			want: &gqlerror.Error{Message: "denied", Extensions: map[string]any{"code": "FORBIDDEN"}},
		},
		{
			name: "Resolver error",
			rep:  map[string]any{"__typename": "Review", "id": "other"},
			want: entityError(nil, "Resolving Review failed: backend down"),
		},
		{
			name: "Resolver panic",
			rep:  map[string]any{"__typename": "Review", "id": "panic"},
			want: entityError(nil, "Reference resolver panicked: boom"),
		},
		{
			name: "Missing typename",
			rep:  map[string]any{"upc": "1"},
			want: entityError(nil, "Representation is missing __typename."),
		},
		{
			name: "Not an entity",
			rep:  map[string]any{"__typename": "Warehouse", "id": "1"},
			want: entityError(nil, `Type "Warehouse" is not an entity.`),
		},
		{
			name: "Not an object",
			rep:  "Product:1",
			want: entityError(nil, "Representation must be an object, got string."),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveEntities(context.Background(), sch, []any{tt.rep})
			if diff := cmp.Diff([]any{tt.want}, got, cmpopts.IgnoreFields(gqlerror.Error{}, "Err")); diff != "" {
				t.Fatalf("ResolveEntities mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtend(t *testing.T) {
	base, err := schema.BuildFromSDL(productsSDL, schema.WithDefinitions(Directives()))
	require.NoError(t, err)

	ext, err := Extend(base)
	require.NoError(t, err)

	require.Nil(t, base.Field("Query", "_service"), "the input schema is left untouched")
	require.NotNil(t, ext.Field("Query", "topProducts"))
	require.Equal(t, "_Service!", ext.Field("Query", "_service").Type.String())
	require.Equal(t, "[_Entity]!", ext.Field("Query", "_entities").Type.String())
	require.Equal(t, "[_Any!]!", ext.Field("Query", "_entities").Argument("representations").Type.String())
	require.Equal(t, []string{"Product", "Review"}, Entities(ext))
	require.Equal(t, []string{"Product", "Review"}, ext.Type("_Entity").PossibleTypes)

	sdl, err := ext.Field("Query", "_service").Resolve(context.Background(), schema.ResolveParams{})
	require.NoError(t, err)
	require.Equal(t, schema.Render(base), sdl.(map[string]any)["sdl"])
	require.NotContains(t, schema.Render(base), "_entities")
}

func TestExtend_WithoutEntities(t *testing.T) {
	ext, err := BuildFromSDL(`type Query { hello: String }`)
	require.NoError(t, err)

	require.NotNil(t, ext.Field("Query", "_service"))
	require.Nil(t, ext.Field("Query", "_entities"))
	require.Nil(t, ext.Type("_Entity"))
}
