package grpctp

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// EndpointProvider returns the reachable endpoints (host:port or any gRPC
// target) for a fully-qualified service name such as "users.Users".
// Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// StaticEndpoints is an in-memory provider.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	s := &StaticEndpoints{data: make(map[string][]string, len(m))}
	for k, v := range m {
		s.data[k] = slices.Clone(v)
	}
	return s
}

// ParseEndpoints builds a StaticEndpoints from "service=target" pairs. A
// service listed more than once gets every target.
func ParseEndpoints(pairs []string) (*StaticEndpoints, error) {
	s := NewStaticEndpoints(nil)
	for _, pair := range pairs {
		service, target, ok := strings.Cut(pair, "=")
		if !ok || service == "" || target == "" {
			return nil, fmt.Errorf("grpctp: invalid endpoint %q, want service=host:port", pair)
		}
		s.Add(service, target)
	}
	return s, nil
}

// Add registers further endpoints for service.
func (s *StaticEndpoints) Add(service string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[service] = append(s.data[service], endpoints...)
}

func (s *StaticEndpoints) Endpoints(ctx context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[service]
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoEndpoints, service)
	}
	return slices.Clone(arr), nil
}
