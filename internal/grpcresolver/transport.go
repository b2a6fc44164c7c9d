package grpcresolver

import (
	"context"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Transport invokes a unary RPC described by method with request and returns
// the response message. Implementations must be safe for concurrent use:
// sibling fields are resolved in parallel.
type Transport interface {
	Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}
