package grpcresolver

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// CallRecord captures a single Call invocation for assertions.
type CallRecord struct {
	Method protoreflect.MethodDescriptor
	// FullMethod is "/<service full name>/<method>".
	FullMethod string
	// Request is a deep copy of the request taken at call time.
	Request proto.Message
}

// MockTransport returns queued responses in order and records every call.
type MockTransport struct {
	mu        sync.Mutex
	responses []protoreflect.Message
	errs      []error
	idx       int
	calls     []CallRecord
}

// NewMockTransport returns a MockTransport answering successive calls with
// responses.
func NewMockTransport(responses ...protoreflect.Message) *MockTransport {
	return &MockTransport{responses: append([]protoreflect.Message(nil), responses...)}
}

// NewMockTransportWithErrors seeds per-call errors alongside responses. For
// call i, a non-nil errs[i] is returned instead of responses[i].
func NewMockTransportWithErrors(responses []protoreflect.Message, errs []error) *MockTransport {
	return &MockTransport{
		responses: append([]protoreflect.Message(nil), responses...),
		errs:      append([]error(nil), errs...),
	}
}

// Call records the invocation and returns the next queued response or error.
func (m *MockTransport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := CallRecord{Method: method}
	if method != nil {
		rec.FullMethod = fullMethod(method)
	}
	if request != nil {
		rec.Request = proto.Clone(request.Interface())
	}
	m.calls = append(m.calls, rec)

	i := m.idx
	m.idx++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		return nil, fmt.Errorf("mock transport: no response for call %d", i+1)
	}
	return m.responses[i], nil
}

// Calls returns a snapshot of the recorded calls.
func (m *MockTransport) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallRecord(nil), m.calls...)
}

func fullMethod(md protoreflect.MethodDescriptor) string {
	return fmt.Sprintf("/%s/%s", md.Parent().FullName(), md.Name())
}
