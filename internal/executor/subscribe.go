package executor

import (
	"context"
	"fmt"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

// CreateSourceStream opens the event stream of a subscription plan's single
// root field. Failures are returned as located GraphQL errors.
func (e *Executor) CreateSourceStream(ctx context.Context, plan *validator.Plan, rootValue any) (schema.EventStream, language.ErrorList) {
	if plan.Operation.Operation != language.Subscription {
		return nil, language.ErrorList{&language.Error{
			Message:    fmt.Sprintf("Operation %q is not a subscription.", plan.Operation.Name),
			Extensions: map[string]any{"code": CodeInternal},
		}}
	}
	root := plan.RootType
	var sel *validator.Selection
	for _, s := range plan.SelectionSet {
		if s.AppliesTo(e.schema, root.Name) && s.Definition != nil {
			sel = s
			break
		}
	}
	if sel == nil {
		return nil, language.ErrorList{&language.Error{
			Message:    "Subscription has no root field to subscribe to.",
			Extensions: map[string]any{"code": CodeInternal},
		}}
	}

	path := language.Path{language.PathName(sel.ResponseKey)}
	info := &schema.ResolveInfo{
		FieldName:  sel.Name,
		ParentType: root,
		ReturnType: sel.Definition.Type,
		Path:       path,
		Fields:     sel.Nodes,
		Schema:     e.schema,
		Operation:  plan.Operation,
		Variables:  plan.Variables,
	}
	stream, err := e.subscribe(ctx, root.Name, sel, rootValue, info)
	if err != nil {
		return nil, locate(err, sel, path)
	}
	if stream == nil {
		return nil, language.ErrorList{fieldError(sel, path, "Subscription field %s.%s returned no event stream.", root.Name, sel.Name)}
	}
	return stream, nil
}

func (e *Executor) subscribe(ctx context.Context, objectType string, sel *validator.Selection, source any, info *schema.ResolveInfo) (stream schema.EventStream, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return e.runtime.SubscribeField(ctx, objectType, sel.Name, source, sel.Arguments, info)
}
