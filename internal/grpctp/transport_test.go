package grpctp

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	eventbus "github.com/hanpama/gqlcore/internal/eventbus"
	events "github.com/hanpama/gqlcore/internal/events"
	grpcresolver "github.com/hanpama/gqlcore/internal/grpcresolver"
	schema "github.com/hanpama/gqlcore/internal/schema"
)

const target = "passthrough:///bufnet"

var checkMethod = healthpb.File_grpc_health_v1_health_proto.Services().ByName("Health").Methods().ByName("Check")

type server struct {
	health *health.Server
	dialer grpc.DialOption

	mu       sync.Mutex
	services []string // x-gqlcore-service metadata per call
}

func startServer(t *testing.T) *server {
	t.Helper()
	s := &server{health: health.NewServer()}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		s.mu.Lock()
		s.services = append(s.services, md.Get(ServiceMetadataKey)...)
		s.mu.Unlock()
		return handler(ctx, req)
	}))
	healthpb.RegisterHealthServer(srv, s.health)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	s.dialer = grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return s
}

func (s *server) transport(t *testing.T, opts ...Option) *Transport {
	t.Helper()
	tr := New(append([]Option{
		WithEndpoints(map[string][]string{"grpc.health.v1.Health": {target}}),
		WithDialOptions(s.dialer, grpc.WithTransportCredentials(insecure.NewCredentials())),
	}, opts...)...)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func checkRequest(service string) protoreflect.Message {
	req := dynamicpb.NewMessage(checkMethod.Input())
	req.Set(checkMethod.Input().Fields().ByName("service"), protoreflect.ValueOfString(service))
	return req
}

func servingStatus(resp protoreflect.Message) healthpb.HealthCheckResponse_ServingStatus {
	return healthpb.HealthCheckResponse_ServingStatus(resp.Get(resp.Descriptor().Fields().ByName("status")).Enum())
}

func TestTransport_Call(t *testing.T) {
	srv := startServer(t)
	tr := srv.transport(t)

	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	var starts []events.GRPCClientStart
	var finishes []events.GRPCClientFinish
	defer eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) { starts = append(starts, e) })()
	defer eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) { finishes = append(finishes, e) })()

	resp, err := tr.Call(context.Background(), checkMethod, checkRequest(""))
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(resp))

	_, err = tr.Call(context.Background(), checkMethod, checkRequest("users.Users"))
	require.Equal(t, codes.NotFound, status.Code(err))

	require.Len(t, starts, 2)
	require.Len(t, finishes, 2)
	require.Equal(t, starts[0].Call, finishes[0].Call)
	require.NotEqual(t, starts[0].Call, starts[1].Call)
	require.Equal(t, events.GRPCClientStart{Call: starts[0].Call, Service: "grpc.health.v1.Health", Method: "Check", Target: target}, starts[0])
	require.Equal(t, codes.OK, finishes[0].Code)
	require.Equal(t, codes.NotFound, finishes[1].Code)
	require.Error(t, finishes[1].Err)

	require.Equal(t, []string{"grpc.health.v1.Health", "grpc.health.v1.Health"}, srv.services)
	require.Len(t, tr.pools[target].idle, 1, "the connection is returned to the pool")
}

func TestTransport_Errors(t *testing.T) {
	srv := startServer(t)

	t.Run("No endpoints", func(t *testing.T) {
		tr := srv.transport(t, WithEndpoints(map[string][]string{}))
		_, err := tr.Call(context.Background(), checkMethod, checkRequest(""))
		require.ErrorIs(t, err, ErrNoEndpoints)
	})

	t.Run("No provider", func(t *testing.T) {
		tr := New()
		_, err := tr.Call(context.Background(), checkMethod, checkRequest(""))
		require.ErrorContains(t, err, "provider not configured")
	})

	t.Run("Closed", func(t *testing.T) {
		tr := srv.transport(t)
		require.NoError(t, tr.Close())
		require.NoError(t, tr.Close())
		_, err := tr.Call(context.Background(), checkMethod, checkRequest(""))
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		tr := srv.transport(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := tr.Call(ctx, checkMethod, checkRequest(""))
		require.Equal(t, codes.Canceled, status.Code(err))
	})
}

func TestTransport_WithResolver(t *testing.T) {
	srv := startServer(t)
	srv.health.SetServingStatus("users.Users", healthpb.HealthCheckResponse_NOT_SERVING)
	resolve := grpcresolver.Field(checkMethod, srv.transport(t))

	got, err := resolve(context.Background(), schema.ResolveParams{Args: map[string]any{"service": "users.Users"}})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(got.(protoreflect.Message)))

	_, err = resolve(context.Background(), schema.ResolveParams{Args: map[string]any{"service": "orders.Orders"}})
	var gqlErr *gqlerror.Error
	require.ErrorAs(t, err, &gqlErr)
	require.Equal(t, "NOT_FOUND", gqlErr.Extensions["code"])
}

func TestParseEndpoints(t *testing.T) {
	p, err := ParseEndpoints([]string{"users.Users=localhost:9001", "users.Users=localhost:9002", "orders.Orders=dns:///orders:443"})
	require.NoError(t, err)

	got, err := p.Endpoints(context.Background(), "users.Users")
	require.NoError(t, err)
	require.Equal(t, []string{"localhost:9001", "localhost:9002"}, got)

	got, err = p.Endpoints(context.Background(), "orders.Orders")
	require.NoError(t, err)
	require.Equal(t, []string{"dns:///orders:443"}, got)

	_, err = p.Endpoints(context.Background(), "unknown.Service")
	require.ErrorIs(t, err, ErrNoEndpoints)

	for _, bad := range []string{"users.Users", "=localhost:1", "users.Users="} {
		_, err := ParseEndpoints([]string{bad})
		require.Error(t, err, bad)
	}
}
