package connect

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/gorilla/websocket"

	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/rpcerror"
)

// RunFunc is the exchange a synchronous session performs once the socket is
// open and the server's opening handshake has been consumed.
type RunFunc func(ws *websocket.Conn) (any, error)

// QuickConnect opens a websocket, runs a single caller-supplied exchange,
// and unconditionally closes the socket before returning the exchange's
// value. The server's opening handshake frame is read and discarded before
// run is invoked.
func QuickConnect(a *auth.Auth, callbackType string, run RunFunc, opts *Options) (any, error) {
	if a == nil {
		return nil, &rpcerror.AuthError{Reason: "auth must be a non-nil Auth"}
	}
	if run == nil {
		return nil, errors.New("quick connect requires a run callback")
	}

	opts = opts.withDefaults()
	target := Resolve(opts.URI, callbackType, opts.InsecureSkipVerify)

	dialer, err := newDialer(a, target, opts)
	if err != nil {
		return nil, err
	}

	ws, resp, err := dialer.Dial(target.URL, dialHeaders(a, callbackType))
	if err != nil {
		return nil, &rpcerror.ConnError{Op: "dial " + target.URL, Err: err}
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	// The socket holds an OS resource; closing must not depend on run
	// returning normally.
	defer ws.Close()

	if _, _, err := ws.ReadMessage(); err != nil {
		return nil, &rpcerror.ConnError{Op: "opening handshake", Err: err}
	}

	return run(ws)
}

// SendJSON encodes msg and writes it as one text frame.
func SendJSON(ws *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &rpcerror.ConnError{Op: "write", Err: err}
	}
	return nil
}

// Request sends msg as JSON and returns the next inbound frame. With asJSON
// the payload is decoded into generic JSON values; without it the raw frame
// is returned as a string.
func Request(ws *websocket.Conn, msg any, asJSON bool) (any, error) {
	if err := SendJSON(ws, msg); err != nil {
		return nil, err
	}

	_, payload, err := ws.ReadMessage()
	if err != nil {
		return nil, &rpcerror.ConnError{Op: "read", Err: err}
	}

	if !asJSON {
		return string(payload), nil
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, &rpcerror.ProtocolError{Payload: payload, Err: err}
	}
	return decoded, nil
}

// Requests applies Request to every message in msgMap, strictly
// sequentially over the single shared socket, and returns a map with the
// same key set. Keys are issued in sorted order so the on-wire sequence is
// deterministic.
func Requests(ws *websocket.Conn, msgMap map[string]any, asJSON bool) (map[string]any, error) {
	keys := make([]string, 0, len(msgMap))
	for key := range msgMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	responses := make(map[string]any, len(msgMap))
	for _, key := range keys {
		response, err := Request(ws, msgMap[key], asJSON)
		if err != nil {
			return nil, fmt.Errorf("request %q: %w", key, err)
		}
		responses[key] = response
	}
	return responses, nil
}

// RequestCallback closes over a pre-built message and produces a RunFunc
// for QuickConnect. This is the standard way higher-level code composes a
// single-shot round trip.
func RequestCallback(msg any, asJSON bool) RunFunc {
	return func(ws *websocket.Conn) (any, error) {
		return Request(ws, msg, asJSON)
	}
}

// RequestsCallback is RequestCallback for a message map.
func RequestsCallback(msgMap map[string]any, asJSON bool) RunFunc {
	return func(ws *websocket.Conn) (any, error) {
		return Requests(ws, msgMap, asJSON)
	}
}
