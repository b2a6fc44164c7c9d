package executor

import (
	"context"
	"fmt"
	"reflect"

	schema "github.com/hanpama/gqlcore/internal/schema"
)

// SchemaRuntime is the Runtime backed by the functions attached to the schema:
// Field.Resolve, Field.Subscribe, Type.ResolveType, Type.IsTypeOf and
// Type.Scalar. Fields without a resolver use DefaultResolve.
type SchemaRuntime struct {
	schema *schema.Schema
}

func NewRuntime(s *schema.Schema) *SchemaRuntime {
	return &SchemaRuntime{schema: s}
}

func (r *SchemaRuntime) ResolveField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (any, error) {
	f := r.schema.Field(objectType, field)
	if f == nil {
		return nil, fmt.Errorf("field %s.%s is not defined", objectType, field)
	}
	if f.Resolve != nil {
		return f.Resolve(ctx, schema.ResolveParams{Source: source, Args: args, Info: info})
	}
	return DefaultResolve(source, field)
}

// ResolveType asks the abstract type's ResolveType first. Without one, a
// "__typename" entry of a map value wins, then the first possible type whose
// IsTypeOf accepts the value.
func (r *SchemaRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	t := r.schema.Type(abstractType)
	if t == nil {
		return "", fmt.Errorf("unknown type %q", abstractType)
	}
	if t.ResolveType != nil {
		return t.ResolveType(ctx, value)
	}
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	for _, pt := range r.schema.PossibleTypes(abstractType) {
		if pt.IsTypeOf != nil && pt.IsTypeOf(value) {
			return pt.Name, nil
		}
	}
	return "", fmt.Errorf("cannot determine the concrete type of %T for %q", value, abstractType)
}

func (r *SchemaRuntime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	t := r.schema.Type(typeName)
	if t == nil {
		return nil, fmt.Errorf("unknown type %q", typeName)
	}
	switch t.Kind {
	case schema.TypeKindEnum:
		return serializeEnum(t, value)
	case schema.TypeKindScalar:
		if t.Scalar == nil || t.Scalar.Serialize == nil {
			return value, nil
		}
		return t.Scalar.Serialize(value)
	}
	return nil, fmt.Errorf("%q is not a leaf type", typeName)
}

func (r *SchemaRuntime) SubscribeField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (schema.EventStream, error) {
	f := r.schema.Field(objectType, field)
	if f == nil {
		return nil, fmt.Errorf("field %s.%s is not defined", objectType, field)
	}
	if f.Subscribe == nil {
		return nil, fmt.Errorf("subscription field %s.%s has no subscriber", objectType, field)
	}
	return f.Subscribe(ctx, schema.ResolveParams{Source: source, Args: args, Info: info})
}

// serializeEnum maps an internal value back to its enum name. Values
// declared without an internal value are represented by their name.
func serializeEnum(t *schema.Type, value any) (any, error) {
	for _, ev := range t.EnumValues {
		if ev.Value != nil && reflect.TypeOf(ev.Value) == reflect.TypeOf(value) && reflect.DeepEqual(ev.Value, value) {
			return ev.Name, nil
		}
	}
	name, ok := value.(string)
	if !ok {
		if s, isStringer := value.(fmt.Stringer); isStringer {
			name = s.String()
		}
	}
	if ev := t.EnumValue(name); ev != nil {
		return ev.Name, nil
	}
	return nil, fmt.Errorf("Enum %q cannot represent value: %v", t.Name, value)
}
