package listener

import (
	"github.com/gorilla/websocket"

	"github.com/plaidcloud/plaid-rpc/internal/logger"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/remote/connect"
)

// AgentCallbackType routes a connection to the server's queue-agent feed,
// which accepts messages for other agents' queues.
const AgentCallbackType = "queue_agent"

// enqueueEnvelope wraps a queue message in the server's message-post
// envelope.
func enqueueEnvelope(cloud int, agentID, resource, method string, data, action any) map[string]any {
	return map[string]any{
		"method":   "post",
		"resource": "message",
		"params": map[string]any{
			"cloud":    cloud,
			"agent_id": agentID,
			"resource": resource,
			"method":   method,
			"data":     data,
			"action":   action,
		},
	}
}

// QueueAgent holds a persistent connection on the queue-agent feed and
// posts messages to agent queues.
type QueueAgent struct {
	BaseListener

	conn   *connect.Conn
	onOpen func(*connect.Conn)
}

// NewQueueAgent opens a queue-agent connection. onOpen, when non-nil, runs
// on the connection's background goroutine once the feed is open.
func NewQueueAgent(a *auth.Auth, onOpen func(*connect.Conn), opts *connect.Options) (*QueueAgent, error) {
	var log *logger.Logger
	if opts != nil {
		log = opts.Logger
	}

	q := &QueueAgent{
		BaseListener: NewBaseListener(log, "queue-agent"),
		onOpen:       onOpen,
	}

	conn, err := connect.Dial(a, AgentCallbackType, q, opts)
	if err != nil {
		return nil, err
	}
	q.conn = conn
	return q, nil
}

// OnOpen runs the caller's hook, if any.
func (q *QueueAgent) OnOpen(c *connect.Conn) {
	if q.onOpen != nil {
		q.onOpen(c)
	}
}

// Add posts a message to an agent queue over the persistent connection.
func (q *QueueAgent) Add(cloud int, agentID, resource, method string, data, action any) error {
	return q.conn.Send(enqueueEnvelope(cloud, agentID, resource, method, data, action))
}

// Close shuts the agent's connection down.
func (q *QueueAgent) Close() error {
	return q.conn.Close()
}

// QuickAdd posts a single message to an agent queue over a one-shot
// synchronous session.
func QuickAdd(a *auth.Auth, cloud int, agentID, resource, method string, data, action any, opts *connect.Options) error {
	_, err := connect.QuickConnect(a, AgentCallbackType, func(ws *websocket.Conn) (any, error) {
		return nil, connect.SendJSON(ws, enqueueEnvelope(cloud, agentID, resource, method, data, action))
	}, opts)
	return err
}
