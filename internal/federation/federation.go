// Package federation makes a schema usable as a subgraph of a federated
// graph. Extend adds the reserved _service and _entities root fields, and
// entity representations are loaded through the reference resolvers
// registered with schema.SetReferenceResolver.
package federation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/sync/errgroup"

	schema "github.com/hanpama/gqlcore/internal/schema"
)

// CodeEntityResolution is reported for representations that could not be
// resolved to an entity.
const CodeEntityResolution = "ENTITY_RESOLUTION"

// ErrEntityResolution is the cause of every per-representation failure.
var ErrEntityResolution = errors.New("entity resolution failed")

const (
	serviceField  = "_service"
	entitiesField = "_entities"
	anyScalar     = "_Any"
	fieldSet      = "_FieldSet"
	serviceType   = "_Service"
	entityUnion   = "_Entity"
)

// Directives returns the federation types and directive definitions:
// the _FieldSet scalar and @key, @external, @requires, @provides,
// @extends and @shareable.
func Directives() ([]*schema.Type, []*schema.Directive) {
	fields := func() *schema.InputValue {
		return schema.NewInputValue("fields", "", schema.NonNullType(schema.NamedType(fieldSet)))
	}
	types := []*schema.Type{
		schema.NewType(fieldSet, schema.TypeKindScalar, "A selection of fields identifying an entity."),
	}
	directives := []*schema.Directive{
		schema.NewDirective("key", "Designates an object type as an entity and specifies its key fields.").
			SetRepeatable(true).
			AddLocation("OBJECT", "INTERFACE").
			AddArgument(fields()).
			AddArgument(schema.NewInputValue("resolvable", "", schema.NamedType("Boolean")).SetDefault(true)),
		schema.NewDirective("external", "Marks a field as owned by another service.").
			AddLocation("FIELD_DEFINITION", "OBJECT"),
		schema.NewDirective("requires", "Names external fields the resolver of this field depends on.").
			AddLocation("FIELD_DEFINITION").
			AddArgument(fields()),
		schema.NewDirective("provides", "Names fields of the returned entity this service can resolve.").
			AddLocation("FIELD_DEFINITION").
			AddArgument(fields()),
		schema.NewDirective("extends", "Marks a type as an extension of a type defined elsewhere.").
			AddLocation("OBJECT", "INTERFACE"),
		schema.NewDirective("shareable", "Allows several services to resolve the field.").
			SetRepeatable(true).
			AddLocation("OBJECT", "FIELD_DEFINITION"),
	}
	return types, directives
}

// BuildFromSDL builds a subgraph schema from SDL that may use the federation
// directives without declaring them, then extends it with Extend.
func BuildFromSDL(sdl string, opts ...schema.RegisterOption) (*schema.Schema, error) {
	types, directives := Directives()
	base, err := schema.BuildFromSDL(sdl, append([]schema.RegisterOption{schema.WithDefinitions(types, directives)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return Extend(base)
}

// Entities returns the object types declared with a resolvable @key, in
// registration order.
func Entities(s *schema.Schema) []string {
	var out []string
	for _, name := range s.TypeNames() {
		t := s.Types[name]
		if t.Kind != schema.TypeKindObject {
			continue
		}
		for _, d := range t.Directives {
			if d.Name == "key" && d.Arg("resolvable") != false {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// Extend returns a copy of s with the federation additions:
//
//	scalar _Any
//	type _Service { sdl: String }
//	union _Entity = <every entity type>
//	extend type Query {
//	  _service: _Service!
//	  _entities(representations: [_Any!]!): [_Entity]!
//	}
//
// _entities and _Entity are left out when s declares no entity. The
// generated fields carry their resolvers, so any runtime that honours
// schema resolvers serves them; see Wrap for other runtimes. s itself is
// not modified.
func Extend(s *schema.Schema) (*schema.Schema, error) {
	sdl := schema.Render(s)
	entities := Entities(s)

	types, directives := s.Definitions()
	fedTypes, fedDirectives := Directives()
	for _, t := range fedTypes {
		if s.Type(t.Name) == nil {
			types = append(types, t)
		}
	}
	for _, d := range fedDirectives {
		if _, exists := s.Directives[d.Name]; !exists {
			directives = append(directives, d)
		}
	}

	queryName := s.QueryType
	if queryName == "" {
		queryName = "Query"
	}
	query := schema.NewType(queryName, schema.TypeKindObject, "")
	if q := s.GetQueryType(); q != nil {
		clone := *q
		clone.Fields = slices.Clone(q.Fields)
		query = &clone
		types = slices.DeleteFunc(types, func(t *schema.Type) bool { return t == q })
	}

	types = append(types,
		schema.NewType(anyScalar, schema.TypeKindScalar, "A representation of an entity: its __typename and key fields."),
		schema.NewType(serviceType, schema.TypeKindObject, "").
			AddField(schema.NewField("sdl", "The SDL of this service.", schema.NamedType("String"))),
	)
	query.AddField(schema.NewField(serviceField, "", schema.NonNullType(schema.NamedType(serviceType))).
		SetResolve(func(ctx context.Context, p schema.ResolveParams) (any, error) {
			return map[string]any{"sdl": sdl}, nil
		}))

	var extended *schema.Schema
	if len(entities) > 0 {
		union := schema.NewType(entityUnion, schema.TypeKindUnion, "")
		for _, name := range entities {
			union.AddPossibleType(name)
		}
		types = append(types, union)
		query.AddField(schema.NewField(entitiesField, "", schema.NonNullType(schema.ListType(schema.NamedType(entityUnion)))).
			AddArgument(schema.NewInputValue("representations", "",
				schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType(anyScalar)))))).
			SetResolve(func(ctx context.Context, p schema.ResolveParams) (any, error) {
				reps, _ := p.Args["representations"].([]any)
				return ResolveEntities(ctx, extended, reps), nil
			}))
	}
	types = append(types, query)

	var err error
	extended, err = schema.Register(types, directives,
		schema.WithRootTypes(queryName, s.MutationType, s.SubscriptionType),
		schema.WithDescription(s.Description),
	)
	if err != nil {
		return nil, err
	}
	return extended, nil
}

// ResolveEntities loads every representation concurrently. The result has
// one item per representation: a schema.Typed entity, nil, or an error
// carrying CodeEntityResolution for representations that failed. A failure
// never affects the other positions.
func ResolveEntities(ctx context.Context, s *schema.Schema, representations []any) []any {
	out := make([]any, len(representations))
	var g errgroup.Group
	for i, rep := range representations {
		g.Go(func() error {
			out[i] = resolveEntity(ctx, s, rep)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func resolveEntity(ctx context.Context, s *schema.Schema, rep any) (result any) {
	defer func() {
		if r := recover(); r != nil {
			result = entityError(nil, "Reference resolver panicked: %v", r)
		}
	}()

	fields, ok := rep.(map[string]any)
	if !ok {
		return entityError(nil, "Representation must be an object, got %T.", rep)
	}
	typeName, _ := fields["__typename"].(string)
	if typeName == "" {
		return entityError(nil, "Representation is missing __typename.")
	}
	t := s.Type(typeName)
	if t == nil || !s.IsPossibleType(entityUnion, typeName) {
		return entityError(nil, "Type %q is not an entity.", typeName)
	}
	if t.ResolveReference == nil {
		return entityError(nil, "Type %q has no reference resolver.", typeName)
	}
	value, err := t.ResolveReference(ctx, fields)
	if err != nil {
		var gqlErr *gqlerror.Error
		if errors.As(err, &gqlErr) {
			return gqlErr
		}
		return entityError(err, "Resolving %s failed: %v", typeName, err)
	}
	if value == nil {
		return nil
	}
	return schema.Typed{TypeName: typeName, Value: value}
}

func entityError(cause error, format string, args ...any) *gqlerror.Error {
	err := ErrEntityResolution
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrEntityResolution, cause)
	}
	return &gqlerror.Error{
		Err:        err,
		Message:    fmt.Sprintf(format, args...),
		Extensions: map[string]any{"code": CodeEntityResolution},
	}
}
