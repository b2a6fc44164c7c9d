package executor

import (
	"context"

	schema "github.com/hanpama/gqlcore/internal/schema"
)

// Runtime defines the host integration surface for field resolution, abstract
// type resolution, leaf-value serialization and subscription sources used by
// the Executor.
//
// General contract
//   - The Executor resolves sibling fields of a selection set concurrently (serially
//     for mutation root fields) and the elements of composite lists concurrently.
//     Implementations must therefore be safe for concurrent use.
//   - Errors returned from any method are converted into located GraphQL errors.
//     If the field's return type is Non-Null, the Executor propagates the null
//     up to the nearest nullable ancestor.
//   - An error that already is a *gqlerror.Error keeps its message and
//     extensions; a gqlerror.List reports several errors for one field.
//   - Implementations must not mutate source or args values.
//
// Object/field identifiers
//   - objectType is the concrete GraphQL object type name (e.g. "User").
//   - field is the GraphQL field name on that type (e.g. "posts").
//   - For root fields, objectType is the root type name (e.g. "Query") and
//     source is the root value given to Execute.
//   - args is the map of argument names to already-coerced Go values.
//   - info describes the field's position in the operation. It is never nil.
//
// Abstract types and leaf values
//   - ResolveType must return the concrete type name for interface/union values.
//     The Executor checks that the name is a possible type of abstractType.
//   - SerializeLeafValue must coerce/serialize scalars and enums into JSON-safe
//     Go values. For enums, return the enum name as string.
//
// Cancellation
//   - ctx is cancelled when the request is abandoned. Long running resolvers
//     should return promptly once ctx is done; their results are discarded.
type Runtime interface {
	// ResolveField resolves the raw value of one field. The value is completed
	// by the Executor against the field's declared type, including nested
	// selection sets. Return (nil, nil) to produce a GraphQL null.
	ResolveField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (any, error)

	// ResolveType determines the concrete runtime type name for a value of an
	// abstract GraphQL type (interface or union).
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value according to the schema and custom scalar hooks.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)

	// SubscribeField opens the source event stream of a subscription root
	// field. It is called once per subscription; every event is then executed
	// as the root value of the subscription operation.
	SubscribeField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (schema.EventStream, error)
}
