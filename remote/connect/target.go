package connect

import "strings"

const (
	// DefaultHost is the production server host.
	DefaultHost = "plaidcloud.com"

	// SocketPath is the fixed websocket endpoint path on every host.
	SocketPath = "/socket"
)

// Target is the resolved endpoint for one connection attempt. It is
// computed once and immutable afterward.
type Target struct {
	// URL is the fully-qualified websocket endpoint.
	URL string

	// CallbackType names the server-side feed this connection is routed
	// to, e.g. "queue_listen" or "handle". Sent as the callback-type
	// header.
	CallbackType string

	// InsecureSkipVerify disables TLS certificate verification. This is
	// explicit, caller-visible configuration for internal or self-signed
	// deployments, never a silent default: verification is forced on for
	// the production host and, absent caller input, off elsewhere.
	InsecureSkipVerify bool
}

// Resolve normalizes uri into a Target. An empty uri selects the production
// host; a missing path gains the fixed socket suffix; a missing scheme
// defaults to wss. Resolve never rejects input -- malformed hosts surface
// later as dial failures.
func Resolve(uri, callbackType string, insecureSkipVerify *bool) Target {
	if uri == "" {
		uri = DefaultHost + SocketPath
	} else if !strings.HasSuffix(uri, SocketPath) {
		uri = uri + SocketPath
	}

	// Verification is forced on for the production host only when the
	// caller left it unspecified; an explicit choice always wins.
	var skip bool
	if insecureSkipVerify == nil {
		skip = !strings.Contains(uri, DefaultHost)
	} else {
		skip = *insecureSkipVerify
	}

	endpoint := uri
	if !strings.Contains(endpoint, "://") {
		endpoint = "wss://" + endpoint
	}

	return Target{
		URL:                endpoint,
		CallbackType:       callbackType,
		InsecureSkipVerify: skip,
	}
}
