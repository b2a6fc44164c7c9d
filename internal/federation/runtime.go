package federation

import (
	"context"

	executor "github.com/hanpama/gqlcore/internal/executor"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

// Wrap returns a Runtime that serves the federation root fields of the
// extended schema s and delegates everything else to base. It is needed
// only for runtimes that do not call the resolvers attached to the schema.
func Wrap(base executor.Runtime, s *schema.Schema) executor.Runtime {
	return &runtime{Runtime: base, schema: s}
}

type runtime struct {
	executor.Runtime
	schema *schema.Schema
}

func (r *runtime) ResolveField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (any, error) {
	if objectType == r.schema.QueryType && (field == serviceField || field == entitiesField) {
		if f := r.schema.Field(objectType, field); f != nil && f.Resolve != nil {
			return f.Resolve(ctx, schema.ResolveParams{Source: source, Args: args, Info: info})
		}
	}
	if objectType == serviceType {
		return executor.DefaultResolve(source, field)
	}
	return r.Runtime.ResolveField(ctx, objectType, field, source, args, info)
}
