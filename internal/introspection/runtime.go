// Package introspection serves the __schema and __type meta fields and the
// introspection types they return.
package introspection

import (
	"context"
	"fmt"
	"slices"
	"strings"

	executor "github.com/hanpama/gqlcore/internal/executor"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

// IntrospectionWrapper holds both the runtime and extended schema
type IntrospectionWrapper struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap extends sch with the introspection types and the __schema and __type
// fields on its query type, and returns a Runtime that resolves them before
// delegating to base. sch itself is not modified.
func Wrap(base executor.Runtime, sch *schema.Schema) (*IntrospectionWrapper, error) {
	extended, err := Extend(sch)
	if err != nil {
		return nil, err
	}
	return &IntrospectionWrapper{
		Runtime: &runtime{Runtime: base, schema: extended},
		Schema:  extended,
	}, nil
}

// Extend returns a copy of sch with the introspection types registered and
// the meta fields attached to the query type. The new fields carry their
// resolvers, so the registry-backed runtime serves them without Wrap.
func Extend(sch *schema.Schema) (*schema.Schema, error) {
	types, directives := sch.Definitions()
	query := sch.GetQueryType()
	if query == nil {
		return nil, fmt.Errorf("introspection: schema has no query type")
	}
	clone := *query
	clone.Fields = slices.Clone(query.Fields)
	for i, t := range types {
		if t == query {
			types[i] = &clone
		}
	}

	var extended *schema.Schema
	r := &resolver{schema: func() *schema.Schema { return extended }}
	meta := metaTypes()
	for _, t := range meta {
		for _, f := range t.Fields {
			f.SetResolve(r.resolve)
		}
	}
	for _, f := range metaFields() {
		clone.AddField(f.SetResolve(r.resolve))
	}

	var err error
	extended, err = schema.Register(append(types, meta...), directives,
		schema.WithRootTypes(sch.QueryType, sch.MutationType, sch.SubscriptionType),
		schema.WithDescription(sch.Description),
		schema.AllowReservedNames(),
	)
	if err != nil {
		return nil, err
	}
	return extended, nil
}

type runtime struct {
	executor.Runtime
	schema *schema.Schema
}

func (r *runtime) ResolveField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (any, error) {
	if isMeta(objectType) || (objectType == r.schema.QueryType && isMeta(field)) {
		if f := r.schema.Field(objectType, field); f != nil && f.Resolve != nil {
			return f.Resolve(ctx, schema.ResolveParams{Source: source, Args: args, Info: info})
		}
	}
	return r.Runtime.ResolveField(ctx, objectType, field, source, args, info)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	if isMeta(typ) {
		return value, nil
	}
	return r.Runtime.SerializeLeafValue(ctx, typ, value)
}

func isMeta(name string) bool { return strings.HasPrefix(name, "__") }

type resolver struct {
	schema func() *schema.Schema
}

func (r *resolver) resolve(ctx context.Context, p schema.ResolveParams) (any, error) {
	sch := r.schema()
	field := p.Info.FieldName
	if p.Info.ParentType != nil && p.Info.ParentType.Name == sch.QueryType {
		switch field {
		case schemaField:
			return sch, nil
		case typeField:
			name, _ := p.Args["name"].(string)
			if t := sch.Type(name); t != nil {
				return t, nil
			}
			return nil, nil
		}
	}

	var (
		v  any
		ok bool
	)
	switch src := p.Source.(type) {
	case *schema.Schema:
		v, ok = resolveSchemaField(src, field)
	case *schema.Type:
		v, ok = resolveTypeField(sch, src, field, p.Args)
	case *schema.TypeRef:
		v, ok = resolveTypeRefField(sch, src, field)
	case *schema.Field:
		v, ok = resolveFieldField(sch, src, field, p.Args)
	case *schema.InputValue:
		v, ok = resolveInputValueField(sch, src, field)
	case *schema.EnumValue:
		v, ok = resolveEnumValueField(src, field)
	case *schema.Directive:
		v, ok = resolveDirectiveField(src, field, p.Args)
	}
	if !ok {
		return nil, fmt.Errorf("introspection field %q is not available on %T", field, p.Source)
	}
	return v, nil
}

// typeOf returns the named type for a named reference and the reference
// itself for LIST and NON_NULL wrappers.
func typeOf(sch *schema.Schema, ref *schema.TypeRef) any {
	if ref == nil {
		return nil
	}
	if ref.Kind == schema.TypeRefKindNamed {
		if t := sch.Type(ref.Named); t != nil {
			return t
		}
		return nil
	}
	return ref
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deprecationReason(deprecated bool, reason string) any {
	if !deprecated {
		return nil
	}
	return reason
}

func resolveSchemaField(sch *schema.Schema, field string) (any, bool) {
	switch field {
	case "description":
		return optional(sch.Description), true
	case "types":
		out := make([]*schema.Type, 0, len(sch.Types))
		for _, name := range sch.TypeNames() {
			out = append(out, sch.Types[name])
		}
		return out, true
	case "queryType":
		return sch.GetQueryType(), true
	case "mutationType":
		if t := sch.GetMutationType(); t != nil {
			return t, true
		}
		return nil, true
	case "subscriptionType":
		if t := sch.GetSubscriptionType(); t != nil {
			return t, true
		}
		return nil, true
	case "directives":
		out := make([]*schema.Directive, 0, len(sch.Directives))
		for _, name := range sch.DirectiveNames() {
			out = append(out, sch.Directives[name])
		}
		return out, true
	}
	return nil, false
}

func resolveTypeField(sch *schema.Schema, t *schema.Type, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return optional(t.Description), true
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if isMeta(f.Name) || (f.IsDeprecated && !boolArg(args, "includeDeprecated")) {
				continue
			}
			out = append(out, f)
		}
		return out, true
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		out := []*schema.Type{}
		for _, name := range t.Interfaces {
			if def := sch.Type(name); def != nil {
				out = append(out, def)
			}
		}
		return out, true
	case "possibleTypes":
		if !t.IsAbstract() {
			return nil, true
		}
		return append([]*schema.Type{}, sch.PossibleTypes(t.Name)...), true
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, true
		}
		out := []*schema.EnumValue{}
		for _, ev := range t.EnumValues {
			if ev.IsDeprecated && !boolArg(args, "includeDeprecated") {
				continue
			}
			out = append(out, ev)
		}
		return out, true
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return inputValues(t.InputFields, args), true
	case "ofType":
		return nil, true
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return t.OneOf, true
	}
	return nil, false
}

// resolveTypeRefField serves LIST and NON_NULL wrappers. Named references
// never reach it because typeOf replaces them with their definition.
func resolveTypeRefField(sch *schema.Schema, ref *schema.TypeRef, field string) (any, bool) {
	switch field {
	case "kind":
		return string(ref.Kind), true
	case "ofType":
		return typeOf(sch, ref.OfType), true
	case "name", "description", "specifiedByURL", "fields", "interfaces",
		"possibleTypes", "enumValues", "inputFields", "isOneOf":
		return nil, true
	}
	return nil, false
}

func resolveFieldField(sch *schema.Schema, f *schema.Field, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return optional(f.Description), true
	case "args":
		return inputValues(f.Arguments, args), true
	case "type":
		return typeOf(sch, f.Type), true
	case "isDeprecated":
		return f.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(f.IsDeprecated, f.DeprecationReason), true
	}
	return nil, false
}

func resolveInputValueField(sch *schema.Schema, v *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return v.Name, true
	case "description":
		return optional(v.Description), true
	case "type":
		return typeOf(sch, v.Type), true
	case "defaultValue":
		if !v.HasDefault() {
			return nil, true
		}
		return schema.RenderValue(v.DefaultValue), true
	case "isDeprecated":
		return v.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(v.IsDeprecated, v.DeprecationReason), true
	}
	return nil, false
}

func resolveEnumValueField(ev *schema.EnumValue, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return optional(ev.Description), true
	case "isDeprecated":
		return ev.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(ev.IsDeprecated, ev.DeprecationReason), true
	}
	return nil, false
}

func resolveDirectiveField(d *schema.Directive, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return optional(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		return append([]string{}, d.Locations...), true
	case "args":
		return inputValues(d.Arguments, args), true
	}
	return nil, false
}

func inputValues(values []*schema.InputValue, args map[string]any) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, v := range values {
		if v.IsDeprecated && !boolArg(args, "includeDeprecated") {
			continue
		}
		out = append(out, v)
	}
	return out
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}
