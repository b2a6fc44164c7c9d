package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/reflect/protoregistry"

	engine "github.com/hanpama/gqlcore/internal/engine"
	eventbus "github.com/hanpama/gqlcore/internal/eventbus"
	grpctp "github.com/hanpama/gqlcore/internal/grpctp"
	metrics "github.com/hanpama/gqlcore/internal/metrics"
	otel "github.com/hanpama/gqlcore/internal/otel"
	server "github.com/hanpama/gqlcore/internal/server"
)

type serveConfig struct {
	schemas       stringListFlag
	federation    bool
	introspection bool
	descriptors   string
	binds         stringListFlag
	references    stringListFlag

	maxTokens     int
	maxDepth      int
	maxComplexity int
	maxQueryDepth int
	concurrency   int

	addr            string
	path            string
	pretty          bool
	timeout         time.Duration
	metadataHeaders stringListFlag
	corsOrigins     stringListFlag
	graphiql        bool
	websocket       bool
	keepAlive       time.Duration

	backends   stringListFlag
	maxConns   int
	rpcTimeout time.Duration

	otelEndpoint string
	otelService  string
	metricsPath  string
	verbosity    int

	logger logr.Logger
}

func parseServeFlags(args []string) (*serveConfig, error) {
	c := &serveConfig{
		introspection: true,
		maxTokens:     15000,
		maxDepth:      100,
		addr:          ":8080",
		path:          "/graphql",
		timeout:       10 * time.Second,
		graphiql:      true,
		websocket:     true,
		keepAlive:     30 * time.Second,
		maxConns:      2,
		rpcTimeout:    3 * time.Second,
		otelService:   "gqlcore",
		metricsPath:   "/metrics",
		logger:        logr.Discard(),
	}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&c.schemas, "schema", "GraphQL SDL file")
	fs.BoolVar(&c.federation, "federation", c.federation, "Serve as a federation subgraph")
	fs.BoolVar(&c.introspection, "graphql.introspection", c.introspection, "Enable introspection")
	fs.StringVar(&c.descriptors, "proto.descriptors", c.descriptors, "FileDescriptorSet file")
	fs.Var(&c.binds, "bind", "Resolve a field with a gRPC method")
	fs.Var(&c.references, "bind.reference", "Resolve federation references with a gRPC method")
	fs.IntVar(&c.maxTokens, "limits.tokens", c.maxTokens, "Max tokens per document")
	fs.IntVar(&c.maxDepth, "limits.depth", c.maxDepth, "Max nesting while parsing")
	fs.IntVar(&c.maxComplexity, "limits.complexity", c.maxComplexity, "Max operation complexity")
	fs.IntVar(&c.maxQueryDepth, "limits.query-depth", c.maxQueryDepth, "Max selection depth")
	fs.IntVar(&c.concurrency, "limits.concurrency", c.concurrency, "Max resolver calls in flight")
	fs.StringVar(&c.addr, "server.addr", c.addr, "HTTP listen address")
	fs.StringVar(&c.path, "server.path", c.path, "GraphQL endpoint path")
	fs.BoolVar(&c.pretty, "server.pretty", c.pretty, "Pretty-print JSON responses")
	fs.DurationVar(&c.timeout, "server.timeout", c.timeout, "Per-request timeout")
	fs.Var(&c.metadataHeaders, "server.metadata-header", "Forward HTTP header to gRPC metadata")
	fs.Var(&c.corsOrigins, "server.cors-origin", "Allowed CORS origin")
	fs.BoolVar(&c.graphiql, "server.graphiql", c.graphiql, "Serve GraphiQL")
	fs.BoolVar(&c.websocket, "server.websocket", c.websocket, "Accept WebSocket subscriptions")
	fs.DurationVar(&c.keepAlive, "server.keepalive", c.keepAlive, "WebSocket ping interval")
	fs.Var(&c.backends, "transport.backend", "Map gRPC service to endpoint")
	fs.IntVar(&c.maxConns, "transport.max-conns-per-endpoint", c.maxConns, "Max conns per endpoint")
	fs.DurationVar(&c.rpcTimeout, "transport.rpc-timeout", c.rpcTimeout, "RPC timeout")
	fs.StringVar(&c.otelEndpoint, "otel.endpoint", c.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&c.otelService, "otel.service", c.otelService, "OpenTelemetry service name")
	fs.StringVar(&c.metricsPath, "metrics.path", c.metricsPath, "Prometheus endpoint path")
	fs.IntVar(&c.verbosity, "log.v", c.verbosity, "Log verbosity")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(c.schemas) == 0 {
		return nil, fmt.Errorf("-schema is required")
	}
	return c, nil
}

// setup builds the schema, the engine and the HTTP handler described by c.
// The returned function releases the gRPC transport.
func (c *serveConfig) setup() (http.Handler, func(), error) {
	sch, err := loadSchema(c.schemas, c.federation)
	if err != nil {
		return nil, nil, fmt.Errorf("load schema: %w", err)
	}

	cleanup := func() {}
	if len(c.binds) > 0 || len(c.references) > 0 {
		var files *protoregistry.Files
		if c.descriptors != "" {
			if files, err = loadDescriptors(c.descriptors); err != nil {
				return nil, nil, fmt.Errorf("load descriptors: %w", err)
			}
		}
		provider, err := grpctp.ParseEndpoints(c.backends)
		if err != nil {
			return nil, nil, err
		}
		trOpts := []grpctp.Option{grpctp.WithProvider(provider), grpctp.WithMaxConnsPerEndpoint(c.maxConns)}
		if c.rpcTimeout > 0 {
			trOpts = append(trOpts, grpctp.WithRPCTimeout(c.rpcTimeout))
		}
		transport := grpctp.New(trOpts...)
		cleanup = func() { _ = transport.Close() }
		if err := bind(sch, files, transport, c.binds, c.references); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("bind: %w", err)
		}
	}

	e, err := engine.New(sch,
		engine.WithParseLimits(c.maxTokens, c.maxDepth),
		engine.WithMaxComplexity(c.maxComplexity),
		engine.WithMaxQueryDepth(c.maxQueryDepth),
		engine.WithConcurrency(c.concurrency),
		engine.WithIntrospection(c.introspection),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("engine init: %w", err)
	}

	sopts := []server.Option{
		server.WithGraphiQL(c.graphiql),
		server.WithWebSocket(c.websocket),
		server.WithKeepAlive(c.keepAlive),
		server.WithLogger(c.logger),
	}
	if c.pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if c.timeout > 0 {
		sopts = append(sopts, server.WithTimeout(c.timeout))
	}
	if len(c.metadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(c.metadataHeaders...))
	}
	if len(c.corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(c.corsOrigins...))
	}
	return c.mux(server.New(e, sopts...)), cleanup, nil
}

func (c *serveConfig) mux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(c.path, h)
	if c.metricsPath != "" {
		reg := prometheus.NewRegistry()
		m := metrics.New()
		m.MustRegister(reg)
		m.Subscribe()
		mux.Handle(c.metricsPath, metrics.Handler(reg))
	}
	return mux
}

func cmdServe(args []string) error {
	c, err := parseServeFlags(args)
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	eventbus.Use(eventbus.New())
	logger := newLogger(os.Stderr, c.verbosity)
	c.logger = logger
	defer subscribeLogger(logger)()

	shutdownTracing, err := otel.Setup(c.otelEndpoint, c.otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	h, cleanup, err := c.setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: c.addr, Handler: h}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL server listening", "addr", c.addr, "path", c.path)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
