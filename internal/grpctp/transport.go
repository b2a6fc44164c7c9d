package grpctp

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	eventbus "github.com/hanpama/gqlcore/internal/eventbus"
	events "github.com/hanpama/gqlcore/internal/events"
	grpcresolver "github.com/hanpama/gqlcore/internal/grpcresolver"
)

// ServiceMetadataKey carries the called service name in outgoing metadata.
const ServiceMetadataKey = "x-gqlcore-service"

// Transport is a gRPC transport with per-endpoint connection pooling and a
// default deadline. Endpoints are looked up through an EndpointProvider on
// every call and one is picked at random.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*pool // by endpoint
	closed atomic.Bool
}

var _ grpcresolver.Transport = (*Transport)(nil)

// callSeq numbers calls across all transports of the process.
var callSeq atomic.Uint64

// New returns a Transport. Connections are dialed on first use.
func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{
		opts:  o,
		pools: make(map[string]*pool),
	}
}

// Call invokes method on one endpoint of its service. Without a deadline
// on ctx, Options.RPCTimeout applies.
func (t *Transport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (resp protoreflect.Message, err error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, fmt.Errorf("grpctp: provider not configured")
	}
	service := string(method.Parent().FullName())
	fullMethod := fmt.Sprintf("/%s/%s", service, method.Name())

	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, ServiceMetadataKey, service)

	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoEndpoints, service)
	}
	endpoint := endpoints[rand.IntN(len(endpoints))]

	p := t.poolFor(endpoint)
	cc, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer p.release(cc)

	call := callSeq.Add(1)
	start := time.Now()
	eventbus.Publish(ctx, events.GRPCClientStart{Call: call, Service: service, Method: string(method.Name()), Target: endpoint})
	out := dynamicpb.NewMessage(method.Output())
	if err = cc.Invoke(ctx, fullMethod, request.Interface(), out); err == nil {
		resp = out
	}
	eventbus.Publish(ctx, events.GRPCClientFinish{
		Call:     call,
		Service:  service,
		Method:   string(method.Name()),
		Target:   endpoint,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	return resp, err
}

// Close closes every pooled connection. Calls made afterwards fail with
// ErrClosed.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*pool{}
	return nil
}

// pool keeps up to limit idle connections to one endpoint. Connections
// are created lazily; a busy pool dials additional ones that are closed on
// release when the idle list is full.
type pool struct {
	target string
	dial   []grpc.DialOption
	limit  int

	mu     sync.Mutex
	idle   []*grpc.ClientConn
	closed bool
}

func (p *pool) acquire() (*grpc.ClientConn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		cc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return cc, nil
	}
	p.mu.Unlock()
	return grpc.NewClient(p.target, p.dial...)
}

func (p *pool) release(cc *grpc.ClientConn) {
	p.mu.Lock()
	if !p.closed && len(p.idle) < p.limit {
		p.idle = append(p.idle, cc)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	_ = cc.Close()
}

func (p *pool) close() {
	p.mu.Lock()
	idle := p.idle
	p.idle, p.closed = nil, true
	p.mu.Unlock()
	for _, cc := range idle {
		_ = cc.Close()
	}
}

// poolFor returns the pool of endpoint, creating it on first use.
func (t *Transport) poolFor(endpoint string) *pool {
	t.mu.RLock()
	p := t.pools[endpoint]
	t.mu.RUnlock()
	if p != nil {
		return p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p = t.pools[endpoint]; p == nil {
		limit := t.opts.MaxConnsPerEndpoint
		if limit <= 0 {
			limit = 2
		}
		p = &pool{target: endpoint, dial: t.opts.DialOptions, limit: limit}
		t.pools[endpoint] = p
	}
	return p
}
