package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hanpama/gqlcore/internal/engine"
	reqid "github.com/hanpama/gqlcore/internal/reqid"
)

// Protocol is the WebSocket subprotocol spoken by ServeWebSocket.
const Protocol = "graphql-transport-ws"

// Message types of the graphql-transport-ws protocol.
const (
	MsgConnectionInit = "connection_init"
	MsgConnectionAck  = "connection_ack"
	MsgPing           = "ping"
	MsgPong           = "pong"
	MsgSubscribe      = "subscribe"
	MsgNext           = "next"
	MsgError          = "error"
	MsgComplete       = "complete"
)

// Close codes of the graphql-transport-ws protocol.
const (
	CloseBadRequest       = 4400
	CloseUnauthorized     = 4401
	CloseForbidden        = 4403
	CloseInitTimeout      = 4408
	CloseSubscriberExists = 4409
	CloseTooManyInits     = 4429
	CloseInternalError    = 4500
)

const writeTimeout = 10 * time.Second

// Message is one graphql-transport-ws frame.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`

	// closeCode, when set, makes the writer close the connection instead.
	closeCode   int
	closeReason string
}

// ServeWebSocket upgrades the request and serves graphql-transport-ws on the
// connection until either side closes it. Closing the connection cancels all
// of its operations.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	wc, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opt.Logger.Error(err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		h:      h,
		wc:     wc,
		header: r.Header,
		ctx:    ctx,
		out:    make(chan outMessage, 32),
		done:   make(chan struct{}),
		ops:    make(map[string]*operation),
	}
	go c.write()

	if h.opt.InitTimeout > 0 {
		t := time.AfterFunc(h.opt.InitTimeout, func() {
			if !c.isAcked() {
				c.close(CloseInitTimeout, "Connection initialisation timeout")
			}
		})
		defer t.Stop()
	}

	if err := c.read(); err != nil {
		h.opt.Logger.Error(err, "websocket read failed", "remote", r.RemoteAddr)
	}
	cancel()
	c.shutdown()
}

type operation struct {
	cancel context.CancelFunc
}

type wsConn struct {
	h      *Handler
	wc     *websocket.Conn
	header http.Header
	out    chan outMessage
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	inited bool
	acked  bool
	ops    map[string]*operation
}

func (c *wsConn) isAcked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acked
}

// send queues m for the writer. It reports false once the connection is
// shutting down.
func (c *wsConn) send(m outMessage) bool {
	select {
	case c.out <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *wsConn) close(code int, reason string) {
	c.send(outMessage{closeCode: code, closeReason: reason})
}

func (c *wsConn) shutdown() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *wsConn) write() {
	defer c.wc.Close()
	var tick <-chan time.Time
	if c.h.opt.KeepAlive > 0 {
		t := time.NewTicker(c.h.opt.KeepAlive)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case m := <-c.out:
			if m.closeCode != 0 {
				c.writeClose(m.closeCode, m.closeReason)
				return
			}
			if err := c.writeMessage(m); err != nil {
				return
			}
		case <-tick:
			if err := c.writeMessage(outMessage{Type: MsgPing}); err != nil {
				return
			}
		case <-c.done:
			c.writeClose(websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (c *wsConn) writeMessage(m outMessage) error {
	_ = c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.wc.WriteJSON(m)
}

func (c *wsConn) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.wc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func (c *wsConn) read() error {
	for {
		op, r, err := c.wc.NextReader()
		if err != nil {
			var cerr *websocket.CloseError
			if errors.As(err, &cerr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if op != websocket.TextMessage {
			c.close(CloseBadRequest, "Invalid message received")
			continue
		}
		var m Message
		if err := json.NewDecoder(r).Decode(&m); err != nil {
			c.close(CloseBadRequest, "Invalid message received")
			continue
		}
		c.handle(m)
	}
}

func (c *wsConn) handle(m Message) {
	switch m.Type {
	case MsgConnectionInit:
		c.init(m)
	case MsgPing:
		pong := outMessage{Type: MsgPong}
		if len(m.Payload) > 0 {
			pong.Payload = m.Payload
		}
		c.send(pong)
	case MsgPong:
	case MsgSubscribe:
		c.subscribe(m)
	case MsgComplete:
		c.mu.Lock()
		op := c.ops[m.ID]
		delete(c.ops, m.ID)
		c.mu.Unlock()
		if op != nil {
			op.cancel()
		}
	default:
		c.close(CloseBadRequest, "Invalid message received")
	}
}

func (c *wsConn) init(m Message) {
	c.mu.Lock()
	if c.inited {
		c.mu.Unlock()
		c.close(CloseTooManyInits, "Too many initialisation requests")
		return
	}
	c.inited = true
	ctx := c.ctx
	c.mu.Unlock()

	var payload map[string]any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			c.close(CloseBadRequest, "Invalid connection_init payload")
			return
		}
	}
	if c.h.opt.Init != nil {
		next, err := c.h.opt.Init(ctx, payload)
		if err != nil {
			c.close(CloseForbidden, "Forbidden")
			return
		}
		if next != nil {
			ctx = next
		}
	}

	c.mu.Lock()
	c.ctx = ctx
	c.acked = true
	c.mu.Unlock()
	c.send(outMessage{Type: MsgConnectionAck})
}

func (c *wsConn) subscribe(m Message) {
	var req engine.Request
	if m.ID == "" || json.Unmarshal(m.Payload, &req) != nil {
		c.close(CloseBadRequest, "Invalid message received")
		return
	}

	c.mu.Lock()
	if !c.acked {
		c.mu.Unlock()
		c.close(CloseUnauthorized, "Unauthorized")
		return
	}
	if _, exists := c.ops[m.ID]; exists {
		c.mu.Unlock()
		c.close(CloseSubscriberExists, "Subscriber for "+m.ID+" already exists")
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	op := &operation{cancel: cancel}
	c.ops[m.ID] = op
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer c.release(m.ID, op)
		c.run(ctx, m.ID, req)
	}()
}

func (c *wsConn) release(id string, op *operation) {
	op.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ops[id] == op {
		delete(c.ops, id)
	}
}

// run executes one operation. A client complete cancels ctx, after which
// nothing more is sent for id.
func (c *wsConn) run(ctx context.Context, id string, req engine.Request) {
	ctx, rid := reqid.NewContext(ctx)
	ctx = c.h.outgoingContext(ctx, c.header, rid)

	sub, resp := c.h.engine.Subscribe(ctx, req)
	if sub == nil {
		if !resp.Executed {
			c.send(outMessage{ID: id, Type: MsgError, Payload: resp.Errors})
			return
		}
		if ctx.Err() == nil {
			c.send(outMessage{ID: id, Type: MsgNext, Payload: resp})
			c.send(outMessage{ID: id, Type: MsgComplete})
		}
		return
	}
	defer sub.Cancel()

	for {
		res, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.send(outMessage{ID: id, Type: MsgComplete})
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.send(outMessage{ID: id, Type: MsgNext, Payload: &engine.Response{
			Data:       res.Data,
			Errors:     res.Errors,
			Extensions: res.Extensions,
			Executed:   true,
		}})
	}
}
