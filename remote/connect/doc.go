// Package connect speaks the server's websocket protocol in two modes.
//
// QuickConnect is a one-shot blocking helper: it dials, discards the
// server's opening handshake frame, runs a caller-supplied exchange, and
// always closes the socket before returning. Request, Requests and their
// callback builders compose single round trips on top of it.
//
// Dial opens a persistent connection: a background goroutine owns the
// socket, runs the receive loop, and invokes the caller's Handler slots
// (open, message, error, close) sequentially in arrival order. Send and
// Close are safe to call from any goroutine.
//
// Both modes are the legacy websocket path; new integrations should prefer
// the connection/jsonrpc client. The persistent path logs an advisory to
// that effect when constructed.
package connect
