// Package executor runs validated GraphQL plans against a Runtime, producing
// an ordered response tree together with located errors.
//
// # Overview
//
// The executor consumes a validator.Plan: fragments are already expanded,
// @skip and @include are already applied and arguments are already coerced.
// What remains is resolution and value completion:
//   - Resolve every field of a selection set through Runtime.ResolveField.
//   - Complete each resolved value against the field's declared type (lists,
//     leaves, objects, abstract types) including Non-Null propagation.
//   - Collect located errors while allowing partial success.
//
// # Concurrency
//
// Sibling fields of a query selection set are resolved concurrently, as are
// the items of a list whose element type is composite. Results are always
// assembled in selection (or index) order, so the response shape never
// depends on which resolver finishes first. Root fields of a mutation are
// resolved one after another, each completing fully before the next begins.
//
// WithConcurrency bounds the number of resolver calls in flight across all
// executions sharing an Executor. A slot is held only while the runtime is
// resolving, never while waiting on child fields, so nested selections cannot
// deadlock on the bound.
//
// # Value Completion
//
//   - Non-Null: complete the inner type. If it produced null, the field is
//     invalid and the enclosing object or list becomes null in turn, up to the
//     nearest nullable position. If that position is the root, data is null.
//   - Null: nil results and typed nils produce GraphQL null.
//   - List: complete each element with an index-aware path. Any slice or
//     array is accepted.
//   - Leaf (Scalar/Enum): defer to Runtime.SerializeLeafValue.
//   - Abstract (Interface/Union): a schema.Typed value names its own type;
//     anything else is passed to Runtime.ResolveType. The type must be a
//     possible object type of the abstract type, and the value then completes
//     as that object. Failures wrap ErrAbstractTypeResolution.
//   - Object: execute the sub-selection set for the object type.
//
// # Errors and Partial Success
//
// A resolver error nulls its field and is reported once with the field's
// response path and location. Errors that already are GraphQL errors keep
// their message and extensions; other errors carry the code
// INTERNAL_SERVER_ERROR. A gqlerror.List returned by a resolver contributes
// each of its errors. A resolved value that is itself an error, for example
// one item of a list, is reported the same way at its own position. Panics
// in resolvers are recovered and reported like errors. Errors appear in
// response order.
//
// # Cancellation
//
// Every resolver receives the execution context. Once it is cancelled no new
// resolver is started, and Execute returns a single CANCELLED error without
// data.
package executor
