package grpcresolver

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"

	executor "github.com/hanpama/gqlcore/internal/executor"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

// responseValue extracts the resolved value from resp. An unset singular
// message field is null.
func responseValue(resp protoreflect.Message, field string) (any, error) {
	if resp == nil {
		return nil, nil
	}
	if field == "" || resp.Descriptor().Fields().ByName(protoreflect.Name(field)) == nil {
		return unwrap(resp), nil
	}
	v, err := executor.DefaultResolve(resp, field)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case protoreflect.Message:
		return unwrap(v), nil
	case []any:
		for i, item := range v {
			if m, ok := item.(protoreflect.Message); ok {
				v[i] = unwrap(m)
			}
		}
		return v, nil
	}
	return v, nil
}

// unwrap returns the set variant of a union envelope: a message whose only
// oneof is named "value". Other messages are returned unchanged.
func unwrap(msg protoreflect.Message) protoreflect.Message {
	desc := msg.Descriptor()
	if desc.Oneofs().Len() != 1 || desc.Oneofs().Get(0).Name() != "value" {
		return msg
	}
	fd := msg.WhichOneof(desc.Oneofs().Get(0))
	if fd == nil || fd.Kind() != protoreflect.MessageKind {
		return msg
	}
	return msg.Get(fd).Message()
}

// TypeResolver resolves the object type of a protobuf message value from its
// message name. A trailing suffix such as "Source" is removed first, so a
// UserSource message is typed as User.
func TypeResolver(suffixes ...string) schema.TypeResolveFunc {
	return func(ctx context.Context, value any) (string, error) {
		msg, ok := value.(protoreflect.Message)
		if !ok || msg == nil {
			return "", fmt.Errorf("cannot infer a type from %T", value)
		}
		name := string(msg.Descriptor().Name())
		for _, s := range suffixes {
			if trimmed, ok := strings.CutSuffix(name, s); ok && trimmed != "" {
				return trimmed, nil
			}
		}
		return name, nil
	}
}
