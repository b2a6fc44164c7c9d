package executor

import (
	"context"
	"fmt"
	"sync"

	schema "github.com/hanpama/gqlcore/internal/schema"
)

// MockResolver resolves a single field for tests.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// NewMockValueResolver returns a MockResolver that always returns the provided value.
func NewMockValueResolver(val any) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return val, nil
	}
}

// NewMockErrorResolver returns a MockResolver that always returns the provided error.
func NewMockErrorResolver(err error) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, err
	}
}

// Call records one ResolveField invocation.
type Call struct {
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
}

// MockRuntime implements Runtime with a resolver registry keyed by
// "ObjectType.Field" and a call log. Fields without a registered resolver
// fall back to DefaultResolve.
type MockRuntime struct {
	mu          sync.Mutex
	resolvers   map[string]MockResolver
	subscribers map[string]func(ctx context.Context, source any, args map[string]any) (schema.EventStream, error)
	calls       []Call

	typeResolver func(value any) (string, error)
	serializer   func(val any, typeName string) (any, error)
}

// NewMockRuntime creates a MockRuntime with the provided resolvers.
func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		resolvers:   make(map[string]MockResolver),
		subscribers: make(map[string]func(ctx context.Context, source any, args map[string]any) (schema.EventStream, error)),
		typeResolver: func(value any) (string, error) {
			if m, ok := value.(map[string]any); ok {
				if typename, ok := m["__typename"].(string); ok {
					return typename, nil
				}
			}
			return "", fmt.Errorf("cannot resolve type")
		},
		serializer: func(val any, typeName string) (any, error) {
			return val, nil
		},
	}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

// SetResolver registers or updates a resolver for the given object type and field.
func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[mockKey(objectType, field)] = resolver
}

// SetSubscriber registers a source stream factory for a subscription field.
func (m *MockRuntime) SetSubscriber(objectType, field string, fn func(ctx context.Context, source any, args map[string]any) (schema.EventStream, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[mockKey(objectType, field)] = fn
}

func (m *MockRuntime) SetTypeResolver(f func(value any) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typeResolver = f
}

func (m *MockRuntime) SetSerializer(f func(val any, typeName string) (any, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serializer = f
}

func (m *MockRuntime) ResolveField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (any, error) {
	m.mu.Lock()
	r := m.resolvers[mockKey(objectType, field)]
	m.calls = append(m.calls, Call{ObjectType: objectType, Field: field, Source: source, Args: args})
	m.mu.Unlock()

	if r == nil {
		return DefaultResolve(source, field)
	}
	return r(ctx, source, args)
}

func (m *MockRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	m.mu.Lock()
	f := m.typeResolver
	m.mu.Unlock()
	if f == nil {
		return "", fmt.Errorf("type resolver not configured")
	}
	return f(value)
}

func (m *MockRuntime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	m.mu.Lock()
	f := m.serializer
	m.mu.Unlock()
	if f == nil {
		return value, nil
	}
	return f(value, scalarOrEnumTypeName)
}

func (m *MockRuntime) SubscribeField(ctx context.Context, objectType string, field string, source any, args map[string]any, info *schema.ResolveInfo) (schema.EventStream, error) {
	m.mu.Lock()
	fn := m.subscribers[mockKey(objectType, field)]
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no subscriber for %s.%s", objectType, field)
	}
	return fn(ctx, source, args)
}

// GetCalls returns a copy of the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func mockKey(objectType, field string) string { return objectType + "." + field }
