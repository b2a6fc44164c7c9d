package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/gqlcore/internal/executor"
	schema "github.com/hanpama/gqlcore/internal/schema"
	"github.com/hanpama/gqlcore/internal/subscription"
)

type counterSource struct {
	events chan map[string]any
	closed chan (<-chan struct{})
}

// counterRuntime serves Subscription.counter from the returned source.
func counterRuntime() (*executor.MockRuntime, *counterSource) {
	src := &counterSource{events: make(chan map[string]any, 8), closed: make(chan (<-chan struct{}), 1)}
	rt := helloRuntime()
	rt.SetSubscriber("Subscription", "counter", func(ctx context.Context, source any, args map[string]any) (schema.EventStream, error) {
		stream, done := subscription.StreamFromChannel(src.events)
		src.closed <- done
		return stream, nil
	})
	return rt, src
}

func (s *counterSource) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case done := <-s.closed:
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("source stream was not closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("source stream was never opened")
	}
}

func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	d := websocket.Dialer{Subprotocols: []string{Protocol}}
	conn, _, err := d.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Equal(t, Protocol, conn.Subprotocol())
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id, typ string, payload any) {
	t.Helper()
	m := map[string]any{"type": typ}
	if id != "" {
		m["id"] = id
	}
	if payload != nil {
		m["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(m))
}

func receive(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var cerr *websocket.CloseError
		require.True(t, errors.As(err, &cerr), "expected a close frame, got %v", err)
		return cerr.Code
	}
}

func initConn(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, "", MsgConnectionInit, map[string]any{})
	require.Equal(t, MsgConnectionAck, receive(t, conn).Type)
}

func TestWebSocket_Subscription(t *testing.T) {
	rt, src := counterRuntime()
	conn := dial(t, newTestHandler(t, rt))
	initConn(t, conn)

	src.events <- map[string]any{"counter": 1}
	src.events <- map[string]any{"counter": 2}
	close(src.events)
	send(t, conn, "s1", MsgSubscribe, map[string]any{"query": "subscription { counter }"})

	for _, want := range []string{`{"data":{"counter":1}}`, `{"data":{"counter":2}}`} {
		m := receive(t, conn)
		require.Equal(t, "s1", m.ID)
		require.Equal(t, MsgNext, m.Type)
		require.JSONEq(t, want, string(m.Payload))
	}
	m := receive(t, conn)
	require.Equal(t, Message{ID: "s1", Type: MsgComplete}, m)
}

func TestWebSocket_SingleResultOperations(t *testing.T) {
	conn := dial(t, newTestHandler(t, helloRuntime()))
	initConn(t, conn)

	send(t, conn, "q", MsgSubscribe, map[string]any{"query": "{ hello }"})
	m := receive(t, conn)
	require.Equal(t, MsgNext, m.Type)
	require.JSONEq(t, `{"data":{"hello":"world"}}`, string(m.Payload))
	require.Equal(t, Message{ID: "q", Type: MsgComplete}, receive(t, conn))

	send(t, conn, "bad", MsgSubscribe, map[string]any{"query": "{ nope }"})
	m = receive(t, conn)
	require.Equal(t, "bad", m.ID)
	require.Equal(t, MsgError, m.Type)
	var errs []map[string]any
	require.NoError(t, json.Unmarshal(m.Payload, &errs))
	require.Len(t, errs, 1)
	require.Equal(t, `Cannot query field "nope" on type "Query".`, errs[0]["message"])
}

func TestWebSocket_ClientCompleteCancels(t *testing.T) {
	rt, src := counterRuntime()
	conn := dial(t, newTestHandler(t, rt))
	initConn(t, conn)

	src.events <- map[string]any{"counter": 1}
	send(t, conn, "s1", MsgSubscribe, map[string]any{"query": "subscription { counter }"})
	require.Equal(t, MsgNext, receive(t, conn).Type)

	send(t, conn, "s1", MsgComplete, nil)
	src.waitClosed(t)

	send(t, conn, "", MsgPing, nil)
	require.Equal(t, MsgPong, receive(t, conn).Type, "nothing else is sent for a completed operation")
}

func TestWebSocket_DisconnectCancels(t *testing.T) {
	rt, src := counterRuntime()
	conn := dial(t, newTestHandler(t, rt))
	initConn(t, conn)

	send(t, conn, "s1", MsgSubscribe, map[string]any{"query": "subscription { counter }"})
	require.NoError(t, conn.Close())
	src.waitClosed(t)
}

func TestWebSocket_InitFunc(t *testing.T) {
	type tokenKey struct{}
	rt := executor.NewMockRuntime(nil)
	rt.SetResolver("Query", "hello", func(ctx context.Context, source any, args map[string]any) (any, error) {
		return ctx.Value(tokenKey{}), nil
	})
	h := newTestHandler(t, rt, WithInitFunc(func(ctx context.Context, payload map[string]any) (context.Context, error) {
		token, _ := payload["token"].(string)
		if token == "" {
			return nil, errors.New("missing token")
		}
		return context.WithValue(ctx, tokenKey{}, token), nil
	}))

	conn := dial(t, h)
	send(t, conn, "", MsgConnectionInit, map[string]any{"token": "secret"})
	require.Equal(t, MsgConnectionAck, receive(t, conn).Type)
	send(t, conn, "q", MsgSubscribe, map[string]any{"query": "{ hello }"})
	require.JSONEq(t, `{"data":{"hello":"secret"}}`, string(receive(t, conn).Payload))

	rejected := dial(t, h)
	send(t, rejected, "", MsgConnectionInit, map[string]any{})
	require.Equal(t, CloseForbidden, closeCode(t, rejected))
}

func TestWebSocket_ProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, conn *websocket.Conn)
		want int
	}{
		{
			name: "Subscribe before init",
			run: func(t *testing.T, conn *websocket.Conn) {
				send(t, conn, "s1", MsgSubscribe, map[string]any{"query": "{ hello }"})
			},
			want: CloseUnauthorized,
		},
		{
			name: "Second init",
			run: func(t *testing.T, conn *websocket.Conn) {
				initConn(t, conn)
				send(t, conn, "", MsgConnectionInit, nil)
			},
			want: CloseTooManyInits,
		},
		{
			name: "Duplicate operation id",
			run: func(t *testing.T, conn *websocket.Conn) {
				initConn(t, conn)
				send(t, conn, "s1", MsgSubscribe, map[string]any{"query": "subscription { counter }"})
				send(t, conn, "s1", MsgSubscribe, map[string]any{"query": "subscription { counter }"})
			},
			want: CloseSubscriberExists,
		},
		{
			name: "Unknown message type",
			run: func(t *testing.T, conn *websocket.Conn) {
				send(t, conn, "", "hello", nil)
			},
			want: CloseBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := counterRuntime()
			conn := dial(t, newTestHandler(t, rt))
			tt.run(t, conn)
			require.Equal(t, tt.want, closeCode(t, conn))
		})
	}
}

func TestWebSocket_InitTimeout(t *testing.T) {
	conn := dial(t, newTestHandler(t, helloRuntime(), WithInitTimeout(20*time.Millisecond)))
	require.Equal(t, CloseInitTimeout, closeCode(t, conn))
}
