// Package listener consumes a persistent connection's callback slots and
// turns inbound messages into work.
//
// BaseListener supplies the default lifecycle behavior every variant
// shares: transport errors close the connection, closure marks the
// listener not-running. Concrete listeners embed it and override the slots
// their protocol needs, the way QueueListener overrides OnOpen and
// OnMessage for the task-queue feed.
package listener

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/plaidcloud/plaid-rpc/internal/logger"
	"github.com/plaidcloud/plaid-rpc/remote/connect"
)

// TaskDescriptor identifies one unit of remote work. url and method select
// the local resource and operation; config is executor-defined and passed
// through verbatim.
type TaskDescriptor struct {
	URL    string          `json:"url"`
	Method string          `json:"method"`
	Config json.RawMessage `json:"config"`
}

// Directive is an instruction the executor may return alongside a task
// result.
type Directive int

const (
	// DirectiveNone continues normal processing.
	DirectiveNone Directive = iota
	// DirectiveExit asks the listener to shut down.
	DirectiveExit
	// DirectiveRestart is reserved for a reload path that is not wired
	// up; listeners log it and continue.
	DirectiveRestart
)

func (d Directive) String() string {
	switch d {
	case DirectiveNone:
		return "none"
	case DirectiveExit:
		return "exit"
	case DirectiveRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// TaskExecutor performs the work described by a task descriptor. It is an
// external collaborator: the listener only locates and invokes it and
// reports the outcome. Execution happens synchronously on the connection's
// receive goroutine, so a slow task delays subsequent messages on the same
// connection.
type TaskExecutor interface {
	ExecuteTask(task TaskDescriptor) (Directive, error)
}

// TaskExecutorFunc adapts a function to the TaskExecutor interface.
type TaskExecutorFunc func(task TaskDescriptor) (Directive, error)

// ExecuteTask invokes the function.
func (f TaskExecutorFunc) ExecuteTask(task TaskDescriptor) (Directive, error) {
	return f(task)
}

// BaseListener provides the default lifecycle slots. It satisfies
// connect.Handler on its own; embedders override the slots they need.
type BaseListener struct {
	log     *logger.Logger
	running atomic.Bool

	errMu   sync.Mutex
	lastErr error
}

// NewBaseListener builds the shared listener state with a prefixed logger.
func NewBaseListener(log *logger.Logger, prefix string) BaseListener {
	if log == nil {
		log = logger.Default()
	}
	b := BaseListener{log: log.WithPrefix(prefix)}
	b.running.Store(true)
	return b
}

// OnOpen does nothing by default.
func (b *BaseListener) OnOpen(*connect.Conn) {}

// OnMessage does nothing by default.
func (b *BaseListener) OnMessage(*connect.Conn, []byte) {}

// OnError records the transport error and closes the connection.
func (b *BaseListener) OnError(c *connect.Conn, err error) {
	b.errMu.Lock()
	b.lastErr = err
	b.errMu.Unlock()

	b.log.Error("connection error: %v", err)
	c.Close()
}

// OnClose marks the listener not-running.
func (b *BaseListener) OnClose(*connect.Conn) {
	b.running.Store(false)
}

// Running reports whether the listener's connection is still live.
func (b *BaseListener) Running() bool {
	return b.running.Load()
}

// Err returns the last transport error observed, if any.
func (b *BaseListener) Err() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.lastErr
}

// Log exposes the listener's prefixed logger to embedders.
func (b *BaseListener) Log() *logger.Logger {
	return b.log
}
