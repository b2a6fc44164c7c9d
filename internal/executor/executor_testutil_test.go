package executor

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

// ignoreCause drops the wrapped Go error from comparisons of GraphQL errors.
var ignoreCause = cmpopts.IgnoreFields(gqlerror.Error{}, "Err")

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func mustSchema(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema error: %v", err)
	}
	return sch
}

// mustPlan validates q against sch and fails the test on any validation error.
func mustPlan(t *testing.T, sch *schema.Schema, q string, vars map[string]any) *validator.Plan {
	t.Helper()
	plan, errs := validator.Validate(sch, mustParseQuery(t, q), "", vars)
	if len(errs) > 0 {
		t.Fatalf("validation errors: %v", errs)
	}
	return plan
}

func runQuery(t *testing.T, rt Runtime, sch *schema.Schema, q string, opts ...Option) *ExecutionResult {
	t.Helper()
	return NewExecutor(rt, sch, opts...).Execute(context.Background(), mustPlan(t, sch, q, nil), nil)
}

func requireResult(t *testing.T, want, got *ExecutionResult) {
	t.Helper()
	if diff := cmp.Diff(want, got, ignoreCause); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func internalError(message string, path language.Path, line, column int) *language.Error {
	return &language.Error{
		Message:    message,
		Path:       path,
		Locations:  []language.Location{{Line: line, Column: column}},
		Extensions: map[string]any{"code": CodeInternal},
	}
}

// sliceStream is an EventStream over a fixed list of events.
type sliceStream struct {
	mu     sync.Mutex
	events []any
	closed bool
}

func (s *sliceStream) Next(ctx context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.events) == 0 {
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
