package grpctp

import (
	"time"

	"google.golang.org/grpc"
)

// Options configures a Transport. Without DialOptions, connections use
// insecure credentials and the default connection backoff. Calls fail
// until a Provider is configured.
type Options struct {
	Provider EndpointProvider

	MaxConnsPerEndpoint int
	// RPCTimeout applies to calls whose context has no deadline.
	RPCTimeout time.Duration

	DialOptions []grpc.DialOption
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 2,
		RPCTimeout:          3 * time.Second,
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}

// WithEndpoints configures a StaticEndpoints provider from m, keyed by
// fully-qualified service name.
func WithEndpoints(m map[string][]string) Option {
	return WithProvider(NewStaticEndpoints(m))
}
