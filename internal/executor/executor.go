package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

// Error codes reported in extensions["code"] of execution errors.
const (
	CodeInternal               = "INTERNAL_SERVER_ERROR"
	CodeAbstractTypeResolution = "ABSTRACT_TYPE_RESOLUTION"
	CodeCancelled              = "CANCELLED"
)

// ErrAbstractTypeResolution is the cause of errors raised when an interface or
// union value cannot be mapped to one of its possible object types.
var ErrAbstractTypeResolution = errors.New("abstract type resolution failed")

// Options configure an Executor.
type Options struct {
	// Concurrency bounds the number of resolver invocations running at the
	// same time across all executions sharing the Executor. Zero means no
	// bound.
	Concurrency int64
}

type Option func(*Options)

func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = int64(n) }
}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
	sem     *semaphore.Weighted
}

func NewExecutor(runtime Runtime, schema *schema.Schema, opts ...Option) *Executor {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	e := &Executor{runtime: runtime, schema: schema}
	if o.Concurrency > 0 {
		e.sem = semaphore.NewWeighted(o.Concurrency)
	}
	return e
}

func (e *Executor) Schema() *schema.Schema { return e.schema }

// executionState holds what one execution shares across goroutines. It is
// read-only once built.
type executionState struct {
	runtime   Runtime
	schema    *schema.Schema
	plan      *validator.Plan
	sem       *semaphore.Weighted
	operation *language.OperationDefinition
}

// completed is the outcome of completing one value. errs are in response
// order. A nil value in a non-null position is turned into a propagation by
// the non-null wrapper, never by the producer.
type completed struct {
	value any
	errs  language.ErrorList
	// invalid reports that a non-null position below produced null, so the
	// enclosing object or list must itself become null.
	invalid bool
}

// Execute runs plan with rootValue as the source of the root fields. Root
// fields of mutations run one after another; every other selection set
// resolves its fields concurrently and assembles them in selection order.
//
// If ctx is cancelled before execution finishes, pending resolvers observe
// the cancellation and the partial result is discarded.
func (e *Executor) Execute(ctx context.Context, plan *validator.Plan, rootValue any) *ExecutionResult {
	state := &executionState{
		runtime:   e.runtime,
		schema:    e.schema,
		plan:      plan,
		sem:       e.sem,
		operation: plan.Operation,
	}
	serial := plan.Operation.Operation == language.Mutation
	res := state.executeSelectionSet(ctx, plan.RootType, plan.SelectionSet, rootValue, nil, serial)

	if err := ctx.Err(); err != nil {
		return &ExecutionResult{Errors: language.ErrorList{cancelledError(err)}}
	}
	if res.invalid || res.value == nil {
		return &ExecutionResult{Errors: res.errs}
	}
	return &ExecutionResult{Data: res.value, Errors: res.errs}
}

func cancelledError(err error) *language.Error {
	return &gqlerror.Error{
		Err:        err,
		Message:    fmt.Sprintf("Execution was cancelled: %v", err),
		Extensions: map[string]any{"code": CodeCancelled},
	}
}

// executeSelectionSet resolves the selections of set that apply to
// objectType. The result value is an Object, or nil with invalid set when
// a non-null field failed.
func (s *executionState) executeSelectionSet(ctx context.Context, objectType *schema.Type, set validator.SelectionSet, source any, path language.Path, serial bool) completed {
	fields := collectFields(objectType, set, s.schema)

	results := make([]completed, len(fields))
	if serial || len(fields) == 1 {
		for i, sel := range fields {
			results[i] = s.executeField(ctx, objectType, sel, source, appendPath(path, language.PathName(sel.ResponseKey)))
		}
	} else {
		var g errgroup.Group
		for i, sel := range fields {
			g.Go(func() error {
				results[i] = s.executeField(ctx, objectType, sel, source, appendPath(path, language.PathName(sel.ResponseKey)))
				return nil
			})
		}
		_ = g.Wait()
	}

	var out completed
	obj := make(Object, 0, len(fields))
	for i, sel := range fields {
		r := results[i]
		out.errs = append(out.errs, r.errs...)
		if r.invalid {
			out.invalid = true
			continue
		}
		obj = append(obj, KeyValue{Key: sel.ResponseKey, Value: r.value})
	}
	if out.invalid {
		return out
	}
	out.value = obj
	return out
}

// collectFields returns the selections of set that apply to objectType,
// one per response key in first-occurrence order. Selections sharing a key
// (a field selected directly and again inside a narrowing fragment) are
// merged into a single field execution. The plan itself is never modified.
func collectFields(objectType *schema.Type, set validator.SelectionSet, sch *schema.Schema) validator.SelectionSet {
	fields := make(validator.SelectionSet, 0, len(set))
	index := make(map[string]int, len(set))
	for _, sel := range set {
		if !sel.AppliesTo(sch, objectType.Name) {
			continue
		}
		i, seen := index[sel.ResponseKey]
		if !seen {
			index[sel.ResponseKey] = len(fields)
			fields = append(fields, sel)
			continue
		}
		first := fields[i]
		merged := *first
		merged.Nodes = append(slices.Clone(first.Nodes), sel.Nodes...)
		merged.SelectionSet = append(slices.Clone(first.SelectionSet), sel.SelectionSet...)
		if merged.Definition != nil {
			if def := objectType.Field(merged.Name); def != nil {
				merged.Definition = def
			}
		}
		fields[i] = &merged
	}
	return fields
}

// executeField resolves one field and completes its value. The field's own
// non-null type decides whether a failure is absorbed here or propagated.
func (s *executionState) executeField(ctx context.Context, objectType *schema.Type, sel *validator.Selection, source any, path language.Path) completed {
	if sel.Definition == nil {
		return completed{value: objectType.Name}
	}
	info := &schema.ResolveInfo{
		FieldName:  sel.Name,
		ParentType: objectType,
		ReturnType: sel.Definition.Type,
		Path:       path,
		Fields:     sel.Nodes,
		Schema:     s.schema,
		Operation:  s.operation,
		Variables:  s.plan.Variables,
	}
	value, err := s.resolve(ctx, objectType.Name, sel, source, info)
	if err != nil {
		return s.fail(sel.Definition.Type, locate(err, sel, path))
	}
	return s.completeValue(ctx, sel.Definition.Type, sel, value, path)
}

// resolve invokes the runtime, holding a concurrency slot for the duration of
// the call only. Panics are recovered into errors.
func (s *executionState) resolve(ctx context.Context, objectType string, sel *validator.Selection, source any, info *schema.ResolveInfo) (value any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return s.runtime.ResolveField(ctx, objectType, sel.Name, source, sel.Arguments, info)
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("resolver panic: %v", p.value)
}

// fail turns field errors into a completion: null for nullable types,
// propagation for non-null ones.
func (s *executionState) fail(typ *schema.TypeRef, errs language.ErrorList) completed {
	return completed{errs: errs, invalid: typ.IsNonNull()}
}

func (s *executionState) completeValue(ctx context.Context, typ *schema.TypeRef, sel *validator.Selection, result any, path language.Path) completed {
	if err, ok := result.(error); ok && err != nil {
		return s.fail(typ, locate(err, sel, path))
	}
	if typ.IsNonNull() {
		inner := s.completeValue(ctx, typ.OfType, sel, result, path)
		if inner.value == nil {
			if !inner.invalid && len(inner.errs) == 0 {
				inner.errs = append(inner.errs, fieldError(sel, path, "Cannot return null for non-nullable field %s.%s.", sel.ParentType.Name, sel.Name))
			}
			inner.invalid = true
		}
		return inner
	}

	if isNullish(result) {
		return completed{}
	}

	if typ.IsList() {
		return s.completeListValue(ctx, typ, sel, result, path)
	}

	named := s.schema.Type(typ.GetNamedType())
	if named == nil {
		return completed{errs: language.ErrorList{fieldError(sel, path, "Unknown type %q.", typ.GetNamedType())}}
	}
	switch named.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := s.runtime.SerializeLeafValue(ctx, named.Name, result)
		if err != nil {
			return completed{errs: locate(err, sel, path)}
		}
		return completed{value: serialized}
	case schema.TypeKindObject:
		return s.completeObjectValue(ctx, named, sel, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return s.completeAbstractValue(ctx, named, sel, result, path)
	}
	return completed{errs: language.ErrorList{fieldError(sel, path, "Cannot complete value of unexpected type %q.", named.Kind)}}
}

// completeListValue completes list items in index order. Items of composite
// type are completed concurrently; leaves are serialized inline.
func (s *executionState) completeListValue(ctx context.Context, typ *schema.TypeRef, sel *validator.Selection, result any, path language.Path) completed {
	items, ok := result.([]any)
	if !ok {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return completed{errs: language.ErrorList{fieldError(sel, path, "Expected a list for field %s.%s, got %T.", sel.ParentType.Name, sel.Name, result)}}
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := typ.OfType
	results := make([]completed, len(items))
	named := s.schema.Type(inner.GetNamedType())
	if named != nil && named.IsComposite() && len(items) > 1 {
		var g errgroup.Group
		for i, item := range items {
			g.Go(func() error {
				results[i] = s.completeValue(ctx, inner, sel, item, appendPath(path, language.PathIndex(i)))
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, item := range items {
			results[i] = s.completeValue(ctx, inner, sel, item, appendPath(path, language.PathIndex(i)))
		}
	}

	var out completed
	list := make([]any, len(items))
	nulled := false
	for i, r := range results {
		out.errs = append(out.errs, r.errs...)
		if r.invalid {
			nulled = true
			continue
		}
		list[i] = r.value
	}
	if !nulled {
		out.value = list
	}
	return out
}

func (s *executionState) completeObjectValue(ctx context.Context, objectType *schema.Type, sel *validator.Selection, result any, path language.Path) completed {
	r := s.executeSelectionSet(ctx, objectType, sel.SelectionSet, result, path, false)
	if r.invalid {
		return completed{errs: r.errs}
	}
	return r
}

func (s *executionState) completeAbstractValue(ctx context.Context, abstractType *schema.Type, sel *validator.Selection, result any, path language.Path) completed {
	var typeName string
	var err error
	if typed, ok := result.(schema.Typed); ok {
		typeName, result = typed.TypeName, typed.Value
	} else {
		typeName, err = s.runtime.ResolveType(ctx, abstractType.Name, result)
	}
	if err != nil {
		return completed{errs: language.ErrorList{abstractTypeError(sel, path,
			fmt.Errorf("%w: %w", ErrAbstractTypeResolution, err),
			"Abstract type %q must resolve to an Object type at runtime for field %s.%s: %v", abstractType.Name, sel.ParentType.Name, sel.Name, err)}}
	}
	objectType := s.schema.Type(typeName)
	if objectType == nil || objectType.Kind != schema.TypeKindObject || !s.schema.IsPossibleType(abstractType.Name, typeName) {
		return completed{errs: language.ErrorList{abstractTypeError(sel, path, ErrAbstractTypeResolution,
			"Abstract type %q must resolve to an Object type at runtime for field %s.%s. Got: %q.", abstractType.Name, sel.ParentType.Name, sel.Name, typeName)}}
	}
	return s.completeObjectValue(ctx, objectType, sel, result, path)
}

func abstractTypeError(sel *validator.Selection, path language.Path, cause error, format string, args ...any) *language.Error {
	err := fieldError(sel, path, format, args...)
	err.Err = cause
	err.Extensions = map[string]any{"code": CodeAbstractTypeResolution}
	return err
}

func fieldError(sel *validator.Selection, path language.Path, format string, args ...any) *language.Error {
	err := &gqlerror.Error{
		Message:    fmt.Sprintf(format, args...),
		Path:       path,
		Extensions: map[string]any{"code": CodeInternal},
	}
	if pos := sel.Position(); pos != nil {
		err.Locations = []language.Location{{Line: pos.Line, Column: pos.Column}}
	}
	return err
}

// locate attaches the field's path and location to a resolver error. GraphQL
// errors keep their message and extensions; a gqlerror.List yields one error
// per element.
func locate(err error, sel *validator.Selection, path language.Path) language.ErrorList {
	var list language.ErrorList
	if errors.As(err, &list) {
		out := make(language.ErrorList, 0, len(list))
		for _, item := range list {
			out = append(out, locateOne(item, sel, path))
		}
		return out
	}
	return language.ErrorList{locateOne(err, sel, path)}
}

func locateOne(err error, sel *validator.Selection, path language.Path) *language.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		located := *gqlErr
		if located.Path == nil {
			located.Path = path
		}
		if len(located.Locations) == 0 {
			if pos := sel.Position(); pos != nil {
				located.Locations = []language.Location{{Line: pos.Line, Column: pos.Column}}
			}
		}
		return &located
	}
	located := gqlerror.WrapPath(path, err)
	located.Extensions = map[string]any{"code": CodeInternal}
	if pos := sel.Position(); pos != nil {
		located.Locations = []language.Location{{Line: pos.Line, Column: pos.Column}}
	}
	return located
}

func appendPath(path language.Path, elem language.PathElement) language.Path {
	out := make(language.Path, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
