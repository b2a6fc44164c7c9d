package schema

import (
	"context"
	"fmt"

	language "github.com/hanpama/gqlcore/internal/language"
)

// ResolveFunc produces the value of one field. The returned value is
// completed against the field's declared type; returning an error marks the
// field as failed.
type ResolveFunc func(ctx context.Context, p ResolveParams) (any, error)

// SubscribeFunc opens the source event stream for a subscription root field.
type SubscribeFunc func(ctx context.Context, p ResolveParams) (EventStream, error)

// TypeResolveFunc returns the concrete object type name for a value of an
// interface or union type.
type TypeResolveFunc func(ctx context.Context, value any) (string, error)

// IsTypeOfFunc reports whether value belongs to an object type.
type IsTypeOfFunc func(value any) bool

// ReferenceResolveFunc loads an entity from a federation representation. The
// representation includes "__typename" and the key fields.
type ReferenceResolveFunc func(ctx context.Context, representation map[string]any) (any, error)

// Typed pairs a value of an interface or union field with its concrete object
// type. The executor takes the type from TypeName without consulting
// ResolveType and resolves the object's fields against Value.
type Typed struct {
	TypeName string
	Value    any
}

// ResolveParams are passed to field resolvers. Args are already coerced to
// their declared input types.
type ResolveParams struct {
	Source any
	Args   map[string]any
	Info   *ResolveInfo
}

// ResolveInfo describes the position of the field being resolved.
type ResolveInfo struct {
	FieldName  string
	ParentType *Type
	ReturnType *TypeRef
	Path       language.Path
	// Fields are the AST nodes merged under this response key.
	Fields    []*language.Field
	Schema    *Schema
	Operation *language.OperationDefinition
	Variables map[string]any
}

// EventStream is a source of subscription events. Next blocks until an event
// is available and returns io.EOF once the stream is exhausted. Close releases
// the stream and may be called more than once.
type EventStream interface {
	Next(ctx context.Context) (any, error)
	Close() error
}

// ScalarFuncs customise coercion of a scalar type.
//
// Serialize converts a resolved value to its response form. ParseValue coerces
// a variable value; ParseLiteral coerces a query literal. Any of them may be
// nil, in which case the value passes through unchanged.
type ScalarFuncs struct {
	Serialize    func(value any) (any, error)
	ParseValue   func(value any) (any, error)
	ParseLiteral func(value *language.Value, variables map[string]any) (any, error)
}

// SetResolver attaches a resolver to typeName.fieldName.
func (s *Schema) SetResolver(typeName, fieldName string, fn ResolveFunc) error {
	f, err := s.lookupField(typeName, fieldName)
	if err != nil {
		return err
	}
	f.Resolve = fn
	return nil
}

// SetSubscriber attaches a source stream factory to a subscription field.
func (s *Schema) SetSubscriber(typeName, fieldName string, fn SubscribeFunc) error {
	f, err := s.lookupField(typeName, fieldName)
	if err != nil {
		return err
	}
	f.Subscribe = fn
	return nil
}

// SetTypeResolver attaches a concrete type resolver to an interface or union.
func (s *Schema) SetTypeResolver(typeName string, fn TypeResolveFunc) error {
	t := s.Types[typeName]
	if t == nil || !t.IsAbstract() {
		return fmt.Errorf("schema: %s is not an interface or union", typeName)
	}
	t.ResolveType = fn
	return nil
}

// SetReferenceResolver attaches a federation reference resolver to an object type.
func (s *Schema) SetReferenceResolver(typeName string, fn ReferenceResolveFunc) error {
	t := s.Types[typeName]
	if t == nil || t.Kind != TypeKindObject {
		return fmt.Errorf("schema: %s is not an object type", typeName)
	}
	t.ResolveReference = fn
	return nil
}

// SetScalar attaches coercion functions to a custom scalar.
func (s *Schema) SetScalar(typeName string, funcs *ScalarFuncs) error {
	t := s.Types[typeName]
	if t == nil || t.Kind != TypeKindScalar {
		return fmt.Errorf("schema: %s is not a scalar type", typeName)
	}
	if t == builtinType(typeName) {
		return fmt.Errorf("schema: built-in scalar %s cannot be overridden", typeName)
	}
	t.Scalar = funcs
	return nil
}

func (s *Schema) lookupField(typeName, fieldName string) (*Field, error) {
	t := s.Types[typeName]
	if t == nil {
		return nil, fmt.Errorf("schema: unknown type %s", typeName)
	}
	f := t.Field(fieldName)
	if f == nil {
		return nil, fmt.Errorf("schema: unknown field %s.%s", typeName, fieldName)
	}
	return f, nil
}
