package listener

import (
	"encoding/json"
	"errors"

	"github.com/plaidcloud/plaid-rpc/internal/logger"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/remote/connect"
	"github.com/plaidcloud/plaid-rpc/rpcerror"
)

// QueueCallbackType routes a connection to the server's task-queue feed.
const QueueCallbackType = "queue_listen"

// QueueListener consumes the task-queue feed: each inbound message is a
// task descriptor, dispatched to the executor and acknowledged back over
// the same connection.
type QueueListener struct {
	BaseListener

	executor TaskExecutor
	conn     *connect.Conn
}

// NewQueueListener opens a persistent connection on the queue_listen feed
// and starts consuming tasks.
func NewQueueListener(a *auth.Auth, executor TaskExecutor, opts *connect.Options) (*QueueListener, error) {
	if executor == nil {
		return nil, errors.New("queue listener requires a task executor")
	}

	var log *logger.Logger
	if opts != nil {
		log = opts.Logger
	}

	l := &QueueListener{
		BaseListener: NewBaseListener(log, "queue"),
		executor:     executor,
	}

	conn, err := connect.Dial(a, QueueCallbackType, l, opts)
	if err != nil {
		return nil, err
	}
	l.conn = conn

	l.Log().Debug("queue listener created")
	return l, nil
}

// OnOpen confirms liveness to the server.
func (l *QueueListener) OnOpen(c *connect.Conn) {
	if err := c.SendText("ping"); err != nil {
		l.Log().Error("failed to send ping: %v", err)
	}
}

// OnMessage decodes one task descriptor, dispatches it, and acknowledges
// receipt. The ack is sent whether or not dispatch succeeded: an executor
// failure is logged and swallowed, since withholding the ack would make the
// server redeliver the task forever.
func (l *QueueListener) OnMessage(c *connect.Conn, message []byte) {
	l.Log().Debug("received task message: %s", message)

	directive := l.execute(message)

	if err := c.SendText("ack"); err != nil {
		l.Log().Error("failed to send ack: %v", err)
	}

	switch directive {
	case DirectiveExit:
		l.Log().Info("queue listener is shutting down on request")
		c.Close()
	case DirectiveRestart:
		// Reserved: the reload path is not wired up.
		l.Log().Warn("restart directive received but not implemented; continuing")
	}
}

func (l *QueueListener) execute(message []byte) Directive {
	var task TaskDescriptor
	if err := json.Unmarshal(message, &task); err != nil {
		l.Log().Error("%v", &rpcerror.ProtocolError{Payload: message, Err: err})
		return DirectiveNone
	}

	directive, err := l.executor.ExecuteTask(task)
	if err != nil {
		l.Log().Error("%v", &rpcerror.TaskError{URL: task.URL, Method: task.Method, Err: err})
		return DirectiveNone
	}
	return directive
}

// Conn exposes the underlying persistent connection.
func (l *QueueListener) Conn() *connect.Conn {
	return l.conn
}

// Close shuts the listener's connection down.
func (l *QueueListener) Close() error {
	return l.conn.Close()
}
