package language

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseQuerySyntaxError(t *testing.T) {
	_, err := ParseQuery("{ user(id: 1 { name } }")
	require.Error(t, err)

	var gqlErr *Error
	require.True(t, errors.As(err, &gqlErr))
	require.NotEmpty(t, gqlErr.Locations)
	require.Equal(t, 1, gqlErr.Locations[0].Line)
	require.Equal(t, CodeParseFailed, gqlErr.Extensions["code"])
	require.False(t, errors.Is(err, ErrTooComplex))
}

func TestParseQueryTokenLimit(t *testing.T) {
	query := "{ a b c d e }"

	t.Run("under limit", func(t *testing.T) {
		_, err := ParseQueryWithLimits(query, Limits{MaxTokens: 7})
		require.NoError(t, err)
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := ParseQueryWithLimits(query, Limits{MaxTokens: 6})
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrTooComplex))

		var gqlErr *Error
		require.True(t, errors.As(err, &gqlErr))
		require.Equal(t, CodeTooComplex, gqlErr.Extensions["code"])
		// Pattern: Result comparison
		if diff := cmp.Diff([]Location{{Line: 1, Column: 13}}, gqlErr.Locations); diff != "" {
			t.Errorf("location mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("comments are free", func(t *testing.T) {
		_, err := ParseQueryWithLimits("# a long comment\n{ a }", Limits{MaxTokens: 3})
		require.NoError(t, err)
	})
}

func TestParseQueryDepthLimit(t *testing.T) {
	query := `{ a { b { ... on B { c { d } } } } }`

	_, err := ParseQueryWithLimits(query, Limits{MaxDepth: 4})
	require.NoError(t, err)

	_, err = ParseQueryWithLimits(query, Limits{MaxDepth: 3})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTooComplex))

	var gqlErr *Error
	require.True(t, errors.As(err, &gqlErr))
	require.Equal(t, "Selection depth exceeds the limit of 3.", gqlErr.Message)
}

func TestPrintRoundTrip(t *testing.T) {
	queries := map[string]string{
		"variables and directives": `query Q($id: ID!, $withName: Boolean = true) {
  user(id: $id) { id name @include(if: $withName) ...F }
}
fragment F on User { friends(first: 10, filter: {name: "a", tags: [A, B]}) { id } }`,
		"anonymous with inline fragments": `{ node(id: "1") { __typename ... on User { name } ... { id } } }`,
		"mutation and subscription": `mutation M { like(id: 1.5) } subscription S { ticks }`,
	}
	for name, query := range queries {
		t.Run(name, func(t *testing.T) {
			first, err := ParseQuery(query)
			require.NoError(t, err)

			printed := Print(first)
			second, err := ParseQuery(printed)
			require.NoError(t, err, printed)

			// Pattern: Result comparison
			if diff := cmp.Diff(Print(first), Print(second)); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, len(first.Operations), len(second.Operations))
			require.Equal(t, len(first.Fragments), len(second.Fragments))
			for i := range first.Operations {
				require.Equal(t, first.Operations[i].Name, second.Operations[i].Name)
				require.Equal(t, first.Operations[i].Operation, second.Operations[i].Operation)
				require.Equal(t, len(first.Operations[i].SelectionSet), len(second.Operations[i].SelectionSet))
			}
		})
	}
}
