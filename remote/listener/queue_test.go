package listener_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaidcloud/plaid-rpc/internal/wstest"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/remote/connect"
	"github.com/plaidcloud/plaid-rpc/remote/listener"
)

func testAuth(t *testing.T) *auth.Auth {
	t.Helper()
	a, err := auth.OAuth2Auth("test-token")
	require.NoError(t, err)
	return a
}

func fastOptions(uri string) *connect.Options {
	return &connect.Options{
		URI:              uri,
		HandshakeTimeout: 2 * time.Second,
		OpenPollAttempts: 50,
		OpenPollInterval: 10 * time.Millisecond,
	}
}

// recordingExecutor records descriptors and can fail or direct per task.
type recordingExecutor struct {
	mu    sync.Mutex
	tasks []listener.TaskDescriptor

	respond func(task listener.TaskDescriptor) (listener.Directive, error)
}

func (e *recordingExecutor) ExecuteTask(task listener.TaskDescriptor) (listener.Directive, error) {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()

	if e.respond != nil {
		return e.respond(task)
	}
	return listener.DirectiveNone, nil
}

func (e *recordingExecutor) seen() []listener.TaskDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]listener.TaskDescriptor, len(e.tasks))
	copy(out, e.tasks)
	return out
}

// queueFeed scripts the server side of a queue_listen session: it expects
// the opening ping, pushes each task, and collects the acks. done is closed
// once every ack is in, and the socket is held open until the client hangs
// up so tests can still observe a live connection.
func queueFeed(t *testing.T, tasks []map[string]any, acks chan<- string, done chan<- struct{}) wstest.Session {
	return func(ws *websocket.Conn, _ http.Header) {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			t.Errorf("expected opening ping, got read error: %v", err)
			close(done)
			return
		}
		if string(payload) != "ping" {
			t.Errorf("expected opening ping, got %q", payload)
			close(done)
			return
		}

		for _, task := range tasks {
			encoded, err := json.Marshal(task)
			if err != nil {
				t.Errorf("encode task: %v", err)
				close(done)
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, encoded); err != nil {
				close(done)
				return
			}
			_, ack, err := ws.ReadMessage()
			if err != nil {
				close(done)
				return
			}
			acks <- string(ack)
		}
		close(done)

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func TestQueueListenerRequiresExecutor(t *testing.T) {
	_, err := listener.NewQueueListener(testAuth(t), nil, nil)
	require.Error(t, err)
}

func TestQueueListenerPingsAcksAndDispatches(t *testing.T) {
	acks := make(chan string, 4)
	done := make(chan struct{})
	tasks := []map[string]any{
		{"url": "analyze/table", "method": "post", "config": map[string]any{"rows": 10}},
		{"url": "document/list", "method": "get", "config": map[string]any{}},
	}
	server := wstest.NewServer(t, false, queueFeed(t, tasks, acks, done))

	exec := &recordingExecutor{}
	l, err := listener.NewQueueListener(testAuth(t), exec, fastOptions(server.URI()))
	require.NoError(t, err)
	defer l.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("queue feed did not complete")
	}

	assert.Equal(t, "ack", <-acks)
	assert.Equal(t, "ack", <-acks)

	seen := exec.seen()
	require.Len(t, seen, 2)
	assert.Equal(t, "analyze/table", seen[0].URL)
	assert.Equal(t, "post", seen[0].Method)
	assert.JSONEq(t, `{"rows":10}`, string(seen[0].Config))
	assert.Equal(t, "document/list", seen[1].URL)
}

func TestQueueListenerAcksEvenWhenExecutorFails(t *testing.T) {
	acks := make(chan string, 4)
	done := make(chan struct{})
	tasks := []map[string]any{
		{"url": "analyze/table", "method": "post", "config": map[string]any{}},
		{"url": "document/list", "method": "get", "config": map[string]any{}},
	}
	server := wstest.NewServer(t, false, queueFeed(t, tasks, acks, done))

	exec := &recordingExecutor{
		respond: func(task listener.TaskDescriptor) (listener.Directive, error) {
			if task.URL == "analyze/table" {
				return listener.DirectiveNone, errors.New("boom")
			}
			return listener.DirectiveNone, nil
		},
	}
	l, err := listener.NewQueueListener(testAuth(t), exec, fastOptions(server.URI()))
	require.NoError(t, err)
	defer l.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("queue feed did not complete")
	}

	// The failed task is still acknowledged, and the next task is
	// processed on the same connection.
	assert.Equal(t, "ack", <-acks)
	assert.Equal(t, "ack", <-acks)
	assert.Len(t, exec.seen(), 2)
	assert.True(t, l.Conn().IsOpen(), "connection survives executor failure")
}

func TestQueueListenerAcksUndecodableTask(t *testing.T) {
	acks := make(chan string, 1)
	done := make(chan struct{})
	server := wstest.NewServer(t, false, func(ws *websocket.Conn, _ http.Header) {
		defer close(done)
		if _, _, err := ws.ReadMessage(); err != nil { // ping
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
			return
		}
		_, ack, err := ws.ReadMessage()
		if err != nil {
			return
		}
		acks <- string(ack)
	})

	exec := &recordingExecutor{}
	l, err := listener.NewQueueListener(testAuth(t), exec, fastOptions(server.URI()))
	require.NoError(t, err)
	defer l.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("queue feed did not complete")
	}

	assert.Equal(t, "ack", <-acks)
	assert.Empty(t, exec.seen(), "undecodable task never reaches the executor")
}

func TestQueueListenerStopsOnExitDirective(t *testing.T) {
	acks := make(chan string, 1)
	done := make(chan struct{})
	tasks := []map[string]any{
		{"url": "agent/control", "method": "exit", "config": map[string]any{}},
	}
	server := wstest.NewServer(t, false, queueFeed(t, tasks, acks, done))

	exec := &recordingExecutor{
		respond: func(listener.TaskDescriptor) (listener.Directive, error) {
			return listener.DirectiveExit, nil
		},
	}
	l, err := listener.NewQueueListener(testAuth(t), exec, fastOptions(server.URI()))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("queue feed did not complete")
	}
	assert.Equal(t, "ack", <-acks, "exit is acknowledged before shutdown")

	require.Eventually(t, func() bool {
		return !l.Running()
	}, 3*time.Second, 20*time.Millisecond, "listener should stop after exit directive")
	assert.Equal(t, connect.StateClosed, l.Conn().State())
}

func TestQueueListenerContinuesOnRestartDirective(t *testing.T) {
	acks := make(chan string, 2)
	done := make(chan struct{})
	tasks := []map[string]any{
		{"url": "agent/control", "method": "restart", "config": map[string]any{}},
		{"url": "document/list", "method": "get", "config": map[string]any{}},
	}
	server := wstest.NewServer(t, false, queueFeed(t, tasks, acks, done))

	exec := &recordingExecutor{
		respond: func(task listener.TaskDescriptor) (listener.Directive, error) {
			if task.Method == "restart" {
				return listener.DirectiveRestart, nil
			}
			return listener.DirectiveNone, nil
		},
	}
	l, err := listener.NewQueueListener(testAuth(t), exec, fastOptions(server.URI()))
	require.NoError(t, err)
	defer l.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("queue feed did not complete")
	}

	// Restart is reserved: the listener logs it and keeps consuming.
	assert.Equal(t, "ack", <-acks)
	assert.Equal(t, "ack", <-acks)
	assert.Len(t, exec.seen(), 2)
	assert.True(t, l.Running())
}
