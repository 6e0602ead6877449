package connect

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plaidcloud/plaid-rpc/internal/logger"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
)

// Options holds per-connection settings. The zero value (or nil) selects
// the production endpoint with the defaults below.
type Options struct {
	// URI overrides the endpoint host (and optionally scheme/path). Empty
	// means the production host.
	URI string

	// InsecureSkipVerify, when non-nil, pins the TLS verification toggle.
	// When nil it is resolved from the host (see Resolve).
	InsecureSkipVerify *bool

	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration

	// OpenPollAttempts and OpenPollInterval bound the blocking wait a
	// persistent connection performs at construction. The wait is best
	// effort: construction returns once the budget is spent whether or
	// not the connection reached Open.
	OpenPollAttempts int
	OpenPollInterval time.Duration

	// Logger receives connection lifecycle logging. Defaults to the
	// process-wide logger.
	Logger *logger.Logger
}

// DefaultOptions returns the settings used when Options is nil.
func DefaultOptions() *Options {
	return &Options{
		HandshakeTimeout: 10 * time.Second,
		OpenPollAttempts: 5,
		OpenPollInterval: time.Second,
	}
}

func (o *Options) withDefaults() *Options {
	def := DefaultOptions()
	if o == nil {
		o = def
	} else {
		copied := *o
		o = &copied
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.OpenPollAttempts <= 0 {
		o.OpenPollAttempts = def.OpenPollAttempts
	}
	if o.OpenPollInterval <= 0 {
		o.OpenPollInterval = def.OpenPollInterval
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return o
}

// newDialer builds a websocket dialer carrying the target's TLS toggle and
// the proxy selection derived from the Auth.
func newDialer(a *auth.Auth, target Target, opts *Options) (*websocket.Dialer, error) {
	proxy, err := a.ProxyFunc()
	if err != nil {
		return nil, err
	}

	d := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: target.InsecureSkipVerify},
	}
	if proxy != nil {
		d.Proxy = proxy
	}
	return d, nil
}

// dialHeaders merges the credential package with the feed routing header.
func dialHeaders(a *auth.Auth, callbackType string) http.Header {
	headers := a.Package()
	headers.Set("callback-type", callbackType)
	return headers
}
