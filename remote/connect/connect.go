package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plaidcloud/plaid-rpc/internal/logger"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/rpcerror"
)

// State represents the lifecycle of a persistent connection.
type State int32

const (
	// StateConnecting indicates the background goroutine is dialing.
	StateConnecting State = iota
	// StateOpen indicates the receive loop is running.
	StateOpen
	// StateClosing indicates a caller asked the connection to stop.
	StateClosing
	// StateClosed indicates the receive loop has exited.
	StateClosed
	// StateError indicates a transport failure; Closed always follows.
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrNotOpen is returned by Send when the connection is not in a state
// that accepts writes.
var ErrNotOpen = errors.New("connection is not open")

// Handler receives lifecycle callbacks from a persistent connection. All
// four slots are invoked on the connection's background goroutine,
// sequentially, in arrival order; no two callbacks for the same connection
// ever run concurrently.
type Handler interface {
	// OnOpen is invoked once, on transition to Open.
	OnOpen(c *Conn)

	// OnMessage is invoked once per inbound frame, in arrival order, with
	// the raw payload. Decoding policy belongs to the handler.
	OnMessage(c *Conn, message []byte)

	// OnError is invoked on any transport-level failure; the connection
	// transitions toward Closed after it returns.
	OnError(c *Conn, err error)

	// OnClose is invoked exactly once, on transition to Closed, whether
	// closure was caller- or transport-initiated.
	OnClose(c *Conn)
}

// Conn is a persistent websocket connection. It owns its socket for the
// lifetime of the object; a dedicated background goroutine runs the receive
// loop and is the sole writer of the connection state.
type Conn struct {
	target  Target
	handler Handler
	log     *logger.Logger

	cancel context.CancelFunc

	wsMu sync.Mutex
	ws   *websocket.Conn

	// writeMu serializes Send against any other writes so frames never
	// interleave.
	writeMu sync.Mutex

	state     atomic.Int32
	closeOnce sync.Once
	closedCh  chan struct{}
	doneCh    chan struct{}

	// callbackDepth is non-zero while a handler slot is executing, so
	// Close can tell when it is being invoked from inside a callback.
	callbackDepth atomic.Int32

	onCloseOnce sync.Once
}

// Dial resolves the target and proxy, starts the background receive loop,
// and performs a bounded blocking wait for the connection to open. The
// wait is best effort: Dial returns a usable *Conn once the poll budget is
// spent even if the connection never reached Open, and Close is safe to
// call on it in every case.
func Dial(a *auth.Auth, callbackType string, handler Handler, opts *Options) (*Conn, error) {
	if a == nil {
		return nil, &rpcerror.AuthError{Reason: "auth must be a non-nil Auth"}
	}
	if handler == nil {
		return nil, errors.New("dial requires a handler")
	}

	opts = opts.withDefaults()
	target := Resolve(opts.URI, callbackType, opts.InsecureSkipVerify)

	dialer, err := newDialer(a, target, opts)
	if err != nil {
		return nil, err
	}

	log := opts.Logger.WithPrefix("connect")
	log.Warn("the persistent websocket connection is deprecated; consider the connection/jsonrpc client instead")

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		target:   target,
		handler:  handler,
		log:      log,
		cancel:   cancel,
		closedCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	go c.run(ctx, dialer, dialHeaders(a, callbackType))

	for attempt := 0; attempt < opts.OpenPollAttempts; attempt++ {
		if c.IsOpen() || c.State() == StateClosed {
			break
		}
		time.Sleep(opts.OpenPollInterval)
	}

	return c, nil
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsOpen reports whether the receive loop is running.
func (c *Conn) IsOpen() bool {
	return c.State() == StateOpen
}

// Target returns the resolved endpoint for this connection.
func (c *Conn) Target() Target {
	return c.target
}

// Send JSON-encodes msg and writes it to the socket. It is safe to call
// from any goroutine; writes are internally serialized.
func (c *Conn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.write(data)
}

// SendText writes a literal control frame such as "ping" or "ack".
func (c *Conn) SendText(text string) error {
	return c.write([]byte(text))
}

func (c *Conn) write(payload []byte) error {
	switch c.State() {
	case StateOpen, StateClosing:
	default:
		return &rpcerror.ConnError{Op: "write", Err: ErrNotOpen}
	}

	c.wsMu.Lock()
	ws := c.ws
	c.wsMu.Unlock()
	if ws == nil {
		return &rpcerror.ConnError{Op: "write", Err: ErrNotOpen}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &rpcerror.ConnError{Op: "write", Err: err}
	}
	return nil
}

// Close asks the background loop to stop and waits for it to exit. It is
// idempotent: closing an already-closed connection is a no-op, and OnClose
// fires exactly once across all paths. When invoked from inside a handler
// callback the wait is skipped, since the loop cannot exit until the
// callback returns.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		// Closing is only meaningful from Connecting or Open; a
		// connection already torn down stays Closed.
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))

		close(c.closedCh)
		c.cancel()
		c.closeSocket()
	})

	if c.callbackDepth.Load() == 0 {
		<-c.doneCh
	}
	return nil
}

func (c *Conn) closeSocket() {
	c.wsMu.Lock()
	ws := c.ws
	c.wsMu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (c *Conn) run(ctx context.Context, dialer *websocket.Dialer, headers http.Header) {
	defer close(c.doneCh)

	ws, resp, err := dialer.DialContext(ctx, c.target.URL, headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if c.State() == StateClosing {
			// Caller closed before the dial completed.
			c.finish()
			return
		}
		c.fail(&rpcerror.ConnError{Op: "dial " + c.target.URL, Err: err})
		return
	}

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	select {
	case <-c.closedCh:
		ws.Close()
		c.finish()
		return
	default:
	}

	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	if c.State() == StateOpen {
		c.log.Debug("connection open: %s (%s)", c.target.URL, c.target.CallbackType)
		c.invoke(func() { c.handler.OnOpen(c) })
	}

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if c.State() == StateClosing {
				c.finish()
				return
			}
			c.fail(&rpcerror.ConnError{Op: "read", Err: err})
			return
		}
		c.invoke(func() { c.handler.OnMessage(c, payload) })
	}
}

func (c *Conn) invoke(fn func()) {
	c.callbackDepth.Add(1)
	defer c.callbackDepth.Add(-1)
	fn()
}

// fail records a transport error, surfaces it to the handler, and tears the
// connection down. Error always transitions to Closed next.
func (c *Conn) fail(err error) {
	c.state.Store(int32(StateError))
	c.log.Error("%v", err)
	c.invoke(func() { c.handler.OnError(c, err) })
	c.closeSocket()
	c.finish()
}

func (c *Conn) finish() {
	c.state.Store(int32(StateClosed))
	c.onCloseOnce.Do(func() {
		c.log.Debug("connection closed: %s", c.target.URL)
		c.invoke(func() { c.handler.OnClose(c) })
	})
}
