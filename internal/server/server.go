// Package server exposes an engine over HTTP and WebSocket.
//
// Queries and mutations are accepted as GET or POST requests, including
// batched POST bodies. Subscriptions (and any other operation) can be run
// over a WebSocket connection speaking the graphql-transport-ws protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/gqlcore/internal/engine"
	eventbus "github.com/hanpama/gqlcore/internal/eventbus"
	events "github.com/hanpama/gqlcore/internal/events"
	language "github.com/hanpama/gqlcore/internal/language"
	reqid "github.com/hanpama/gqlcore/internal/reqid"
)

// RequestIDMetadataKey carries the request id in outgoing gRPC metadata.
const RequestIDMetadataKey = "graphql-request-id"

// Handler is an http.Handler that serves a GraphQL endpoint.
type Handler struct {
	engine   *engine.Engine
	opt      Options
	upgrader websocket.Upgrader
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout. Subscriptions are not subject to it.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// CacheControl is sent with every GraphQL response.
	CacheControl string

	// WebSocket accepts graphql-transport-ws upgrades on the same endpoint.
	WebSocket bool

	// KeepAlive is the interval of server pings on WebSocket connections.
	// 0 disables them.
	KeepAlive time.Duration

	// InitTimeout closes WebSocket connections that have not sent
	// connection_init in time. 0 waits forever.
	InitTimeout time.Duration

	// Init, if set, inspects the connection_init payload.
	Init InitFunc

	// Logger reports transport failures.
	Logger logr.Logger
}

// InitFunc accepts or rejects a WebSocket connection from its
// connection_init payload. The returned context is used for every operation
// of the connection. Returning an error closes the connection with 4403.
type InitFunc func(ctx context.Context, payload map[string]any) (context.Context, error)

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option        { return func(o *Options) { o.GraphiQL = enable } }
func WithCacheControl(value string) Option   { return func(o *Options) { o.CacheControl = value } }
func WithWebSocket(enable bool) Option       { return func(o *Options) { o.WebSocket = enable } }
func WithKeepAlive(d time.Duration) Option   { return func(o *Options) { o.KeepAlive = d } }
func WithInitTimeout(d time.Duration) Option { return func(o *Options) { o.InitTimeout = d } }
func WithInitFunc(fn InitFunc) Option        { return func(o *Options) { o.Init = fn } }
func WithLogger(logger logr.Logger) Option   { return func(o *Options) { o.Logger = logger } }

func defaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		GraphiQL:     true,
		CacheControl: "no-store",
		WebSocket:    true,
		KeepAlive:    30 * time.Second,
		InitTimeout:  10 * time.Second,
		Logger:       logr.Discard(),
	}
}

// New creates a handler serving e.
func New(e *engine.Engine, opts ...Option) *Handler {
	op := defaultOptions()
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{engine: e, opt: op}
	h.upgrader = websocket.Upgrader{
		Subprotocols: []string{Protocol},
		CheckOrigin:  h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opt.WebSocket && websocket.IsWebSocketUpgrade(r) {
		h.ServeWebSocket(w, r)
		return
	}

	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	status := http.StatusOK
	start := time.Now()
	finish := events.HTTPFinish{Request: r}
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		finish.Status, finish.Duration = status, time.Since(start)
		eventbus.Publish(ctx, finish)
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		h.writeJSON(w, status, requestError("Method not allowed."))
		return
	}

	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	ctx = h.outgoingContext(ctx, r.Header, rid)

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if errors.Is(berr, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.writeJSON(w, status, requestError(berr.Error()))
		return
	}

	if r.Method == http.MethodGet && isMutation(req) {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", "POST")
		h.writeJSON(w, status, requestError("Mutations cannot be sent with GET."))
		return
	}

	if batch != nil {
		finish.Batch, finish.Operations = true, len(batch)
		out := make([]*engine.Response, len(batch))
		var g errgroup.Group
		for i := range batch {
			g.Go(func() error {
				out[i] = h.engine.Do(ctx, batch[i])
				return nil
			})
		}
		_ = g.Wait()
		h.writeJSON(w, status, out)
		return
	}

	finish.Operations = 1
	h.writeJSON(w, status, h.engine.Do(ctx, req))
}

// outgoingContext forwards the configured headers and the request id as
// outgoing gRPC metadata.
func (h *Handler) outgoingContext(ctx context.Context, header http.Header, rid int64) context.Context {
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md[RequestIDMetadataKey] = []string{strconv.FormatInt(rid, 10)}
	return metadata.NewOutgoingContext(ctx, md)
}

// isMutation reports whether the operation req selects is a mutation.
// Documents that do not parse are left for the engine to reject.
func isMutation(req engine.Request) bool {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		return false
	}
	op := doc.Operations.ForName(req.OperationName)
	if op == nil && req.OperationName == "" && len(doc.Operations) == 1 {
		op = doc.Operations[0]
	}
	return op != nil && op.Operation == language.Mutation
}

// ------------------ Request parsing ------------------

var errBodyTooLarge = errors.New("Request body too large.")

func parseRequest(r *http.Request, maxBody int64) (engine.Request, []engine.Request, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		if q.Get("query") == "" {
			return engine.Request{}, nil, errors.New("Missing query.")
		}
		req := engine.Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return engine.Request{}, nil, errors.New("Variables must be a JSON object.")
			}
		}
		if v := q.Get("extensions"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Extensions); err != nil {
				return engine.Request{}, nil, errors.New("Extensions must be a JSON object.")
			}
		}
		return req, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return engine.Request{}, nil, errors.New("Unsupported Content-Type.")
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return engine.Request{}, nil, errors.New("Failed to read the request body.")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return engine.Request{}, nil, errBodyTooLarge
	}

	if len(body) > 0 && body[0] == '[' {
		var batch []engine.Request
		if err := json.Unmarshal(body, &batch); err != nil {
			return engine.Request{}, nil, errors.New("Invalid JSON body.")
		}
		if len(batch) == 0 {
			return engine.Request{}, nil, errors.New("Empty batch.")
		}
		return engine.Request{}, batch, nil
	}
	var req engine.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return engine.Request{}, nil, errors.New("Invalid JSON body.")
	}
	if req.Query == "" {
		return engine.Request{}, nil, errors.New("Missing query.")
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

func requestError(message string) *engine.Response {
	return &engine.Response{Errors: language.ErrorList{{
		Message:    message,
		Extensions: map[string]any{"code": "BAD_REQUEST"},
	}}}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if h.opt.CacheControl != "" {
		w.Header().Set("Cache-Control", h.opt.CacheControl)
	}
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if h.opt.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		h.opt.Logger.Error(err, "writing response failed")
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.opt.CORS.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
