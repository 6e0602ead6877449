package handle_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaidcloud/plaid-rpc/internal/wstest"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/remote/connect"
	"github.com/plaidcloud/plaid-rpc/remote/handle"
)

func testAuth(t *testing.T) *auth.Auth {
	t.Helper()
	a, err := auth.OAuth2Auth("test-token")
	require.NoError(t, err)
	return a
}

func TestQuickRequestRoundTrip(t *testing.T) {
	received := make(chan []byte, 1)
	server := wstest.NewServer(t, true, func(ws *websocket.Conn, _ http.Header) {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- payload
		ws.WriteMessage(websocket.TextMessage, []byte(`{"status":"ok"}`))
	})

	opts := &connect.Options{URI: server.URI(), HandshakeTimeout: 2 * time.Second}
	result, err := handle.QuickRequest(testAuth(t), 9, "get", "analyze/table", map[string]any{"id": 4}, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok"}`, result)

	select {
	case payload := <-received:
		assert.JSONEq(t, `{
			"method": "get",
			"resource": "analyze/table",
			"cloud": 9,
			"data": {"id": 4},
			"action": null
		}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the request")
	}

	headers := server.Headers()
	require.Len(t, headers, 1)
	assert.Equal(t, "handle", headers[0].Get("Callback-Type"))
}

func TestQuickRequestRejectsNilAuth(t *testing.T) {
	_, err := handle.QuickRequest(nil, 1, "get", "analyze/table", nil, nil, nil)
	require.Error(t, err)
}
