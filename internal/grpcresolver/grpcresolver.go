// Package grpcresolver turns unary gRPC methods into field and reference
// resolvers. Requests are built with dynamicpb from the coerced field
// arguments, so no generated code is needed: a method descriptor, usually
// loaded from a compiled descriptor set, is enough.
//
// Request fields are matched by their JSON name. A field named like an
// argument receives the argument value; fields mapped with WithSourceField
// are copied from the parent object. The resolved value is the response's
// "data" field when the response message has one and the whole message
// otherwise. Messages are returned as protoreflect.Message values so nested
// selections resolve through the executor's default field resolver.
package grpcresolver

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	executor "github.com/hanpama/gqlcore/internal/executor"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

// DataField is the response field returned by default.
const DataField = "data"

// Options configures a resolver.
type Options struct {
	// SourceFields maps request field JSON names to parent field names.
	SourceFields map[string]string
	// ResponseField names the response field holding the result. When it is
	// empty or absent from the response message, the whole message is the
	// result.
	ResponseField string
	// SkipNullKeys skips the call and resolves to null when a request field
	// would be set from a null argument or parent field.
	SkipNullKeys bool
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{ResponseField: DataField}
}

func WithSourceField(requestField, parentField string) Option {
	return func(o *Options) {
		if o.SourceFields == nil {
			o.SourceFields = map[string]string{}
		}
		o.SourceFields[requestField] = parentField
	}
}
func WithResponseField(name string) Option { return func(o *Options) { o.ResponseField = name } }
func WithWholeResponse() Option            { return func(o *Options) { o.ResponseField = "" } }
func WithSkipNullKeys() Option             { return func(o *Options) { o.SkipNullKeys = true } }

// Field returns a resolver invoking method through t once per resolved field.
func Field(method protoreflect.MethodDescriptor, t Transport, opts ...Option) schema.ResolveFunc {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return func(ctx context.Context, p schema.ResolveParams) (any, error) {
		values, err := requestValues(p.Source, p.Args, o.SourceFields)
		if err != nil {
			return nil, err
		}
		return invoke(ctx, method, t, values, o)
	}
}

// Reference returns a federation reference resolver sending the entity
// representation, without __typename, as the request of method.
func Reference(method protoreflect.MethodDescriptor, t Transport, opts ...Option) schema.ReferenceResolveFunc {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return func(ctx context.Context, representation map[string]any) (any, error) {
		values := make(map[string]any, len(representation))
		for k, v := range representation {
			if k != "__typename" {
				values[k] = v
			}
		}
		return invoke(ctx, method, t, values, o)
	}
}

func invoke(ctx context.Context, method protoreflect.MethodDescriptor, t Transport, values map[string]any, o *Options) (any, error) {
	if o.SkipNullKeys && hasNullInputFields(method.Input(), values) {
		return nil, nil
	}
	req := dynamicpb.NewMessage(method.Input())
	if err := setFields(req, values); err != nil {
		return nil, fmt.Errorf("%s: %w", fullMethod(method), err)
	}
	resp, err := t.Call(ctx, method, req)
	if err != nil {
		return nil, Error(err)
	}
	return responseValue(resp, o.ResponseField)
}

// requestValues merges args with the parent fields named in sources.
// Arguments win over parent fields of the same name.
func requestValues(source any, args map[string]any, sources map[string]string) (map[string]any, error) {
	if len(sources) == 0 {
		return args, nil
	}
	out := make(map[string]any, len(args)+len(sources))
	for k, v := range args {
		out[k] = v
	}
	for dst, src := range sources {
		if _, ok := out[dst]; ok {
			continue
		}
		v, err := executor.DefaultResolve(source, src)
		if err != nil {
			return nil, err
		}
		out[dst] = v
	}
	return out, nil
}

func hasNullInputFields(desc protoreflect.MessageDescriptor, values map[string]any) bool {
	fields := desc.Fields()
	for i := 0; i < fields.Len(); i++ {
		if v, ok := values[fields.Get(i).JSONName()]; ok && v == nil {
			return true
		}
	}
	return false
}
