// Package handle issues one-shot requests on the server's handle feed.
// Handles are normally reached over plain HTTP; this websocket path exists
// for callers already holding socket credentials. New code should prefer
// connection/jsonrpc.
package handle

import (
	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/remote/connect"
)

// CallbackType routes a connection to the server's handle feed.
const CallbackType = "handle"

// QuickRequest performs a single request/response round trip on the handle
// feed over a one-shot session. The reply frame is returned as a raw string.
func QuickRequest(a *auth.Auth, cloud int, method, resource string, data, action any, opts *connect.Options) (any, error) {
	return connect.QuickConnect(a, CallbackType, connect.RequestCallback(map[string]any{
		"method":   method,
		"resource": resource,
		"cloud":    cloud,
		"data":     data,
		"action":   action,
	}, false), opts)
}
