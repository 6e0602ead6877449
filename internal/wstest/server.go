// Package wstest provides a scriptable websocket peer for tests. It wraps
// an httptest.Server with a gorilla upgrader at the fixed socket path and
// hands each accepted connection to a test-supplied session function.
package wstest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// Session drives one accepted connection. The helper closes the socket
// when the session returns.
type Session func(ws *websocket.Conn, header http.Header)

// Server is a websocket test peer.
type Server struct {
	httpServer *httptest.Server

	mu      sync.Mutex
	headers []http.Header
}

// NewServer starts a test peer serving the /socket path. Every accepted
// connection first receives an opening handshake frame ("connected") when
// withHandshake is set, then runs the session.
func NewServer(t *testing.T, withHandshake bool, session Session) *Server {
	t.Helper()

	s := &Server{}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/socket", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		if withHandshake {
			if err := ws.WriteMessage(websocket.TextMessage, []byte("connected")); err != nil {
				return
			}
		}
		if session != nil {
			session(ws, r.Header)
		}
	})

	s.httpServer = httptest.NewServer(mux)
	t.Cleanup(s.httpServer.Close)
	return s
}

// URI returns the ws:// endpoint without the socket path, the way callers
// pass hosts to the client options.
func (s *Server) URI() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http")
}

// Headers returns the request headers of every accepted connection.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]http.Header, len(s.headers))
	copy(out, s.headers)
	return out
}

// Echo is a session that replies to every inbound frame with the same
// payload until the peer disconnects.
func Echo(ws *websocket.Conn, _ http.Header) {
	for {
		kind, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}
