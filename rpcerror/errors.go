// Package rpcerror defines the error taxonomy shared by the websocket and
// JSON-RPC clients: credential problems surface as AuthError at setup time,
// transport problems as ConnError, undecodable frames as ProtocolError,
// executor failures as TaskError, and server-reported JSON-RPC failures as
// RPCError (or RPCWarning for the advisory code).
package rpcerror

import "fmt"

const (
	// WarningCode is the JSON-RPC error code the server uses for advisory
	// conditions that callers should see as warnings, not failures.
	WarningCode = -1000

	// InternalCode is the default JSON-RPC internal error code.
	InternalCode = -32603
)

// AuthError reports missing or invalid credentials. It is returned
// synchronously at connection or session setup and is never retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// ConnError reports a transport-level failure: dial, handshake, read or
// write on the underlying socket.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// ProtocolError reports a frame that failed JSON decoding when decoding was
// requested. The raw payload is retained for diagnostics.
type ProtocolError struct {
	Payload []byte
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: decode frame: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TaskError reports a failure of the external task executor while processing
// a single task descriptor. It is logged by the listener and never aborts
// the connection.
type TaskError struct {
	URL    string
	Method string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// RPCError is an error object forwarded from the JSON-RPC server.
type RPCError struct {
	Message string
	Code    int
	Data    any
}

func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError builds an RPCError, substituting the internal error code when
// the server did not supply one.
func NewRPCError(message string, code int, data any) *RPCError {
	if code == 0 {
		code = InternalCode
	}
	return &RPCError{Message: message, Code: code, Data: data}
}

// RPCWarning is a server-reported advisory (WarningCode). It satisfies error
// so call sites can propagate it, but callers may choose to log and continue.
type RPCWarning struct {
	Message string
}

func (w *RPCWarning) Error() string {
	return "rpc warning: " + w.Message
}
