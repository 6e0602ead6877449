// Package jsonrpc is the HTTP JSON-RPC client, the recommended replacement
// for the websocket request paths. Each call posts one JSON-RPC 2.0 payload
// to the server's /json-rpc/ endpoint and decodes the ok/result/error
// envelope the server wraps responses in.
package jsonrpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/plaidcloud/plaid-rpc/internal/logger"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
	"github.com/plaidcloud/plaid-rpc/rpcerror"
)

// DefaultURI is the production JSON-RPC endpoint.
const DefaultURI = "https://plaidcloud.com/json-rpc/"

const (
	defaultMaxTries      = 5
	defaultRetryInterval = 500 * time.Millisecond
)

// Options holds per-client settings. The zero value selects the production
// endpoint defaults.
type Options struct {
	// Workspace scopes calls to one workspace. Zero lets the server pick
	// the token's default workspace.
	Workspace int

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Proxy routes requests through an intermediary.
	Proxy *auth.ProxyConfig

	// HTTPClient overrides the constructed client; Proxy and
	// InsecureSkipVerify are ignored when set.
	HTTPClient *http.Client

	// MaxTries bounds the total request attempts for retryable failures.
	MaxTries uint64

	// RetryInterval is the initial backoff delay between attempts.
	RetryInterval time.Duration

	// Logger receives request logging. Defaults to the process-wide logger.
	Logger *logger.Logger
}

// Client posts JSON-RPC calls over HTTP.
type Client struct {
	token     string
	uri       string
	workspace int

	hc            *http.Client
	maxTries      uint64
	retryInterval time.Duration
	log           *logger.Logger
}

// New builds a client for the given bearer token and endpoint. An empty uri
// selects the production endpoint; an empty token sends unauthenticated
// requests.
func New(token, uri string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	if uri == "" {
		uri = DefaultURI
	}

	hc := opts.HTTPClient
	if hc == nil {
		proxy, err := auth.ProxyFunc(opts.Proxy)
		if err != nil {
			return nil, err
		}
		transport := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		}
		if proxy != nil {
			transport.Proxy = proxy
		}
		hc = &http.Client{
			Transport: transport,
			// RPC posts never follow redirects.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	maxTries := opts.MaxTries
	if maxTries == 0 {
		maxTries = defaultMaxTries
	}
	retryInterval := opts.RetryInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Client{
		token:         token,
		uri:           uri,
		workspace:     opts.Workspace,
		hc:            hc,
		maxTries:      maxTries,
		retryInterval: retryInterval,
		log:           log.WithPrefix("jsonrpc"),
	}, nil
}

// URI returns the endpoint the client posts to.
func (c *Client) URI() string {
	return c.uri
}

// envelope is the server's response wrapper.
type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Data    any    `json:"data"`
	} `json:"error"`
}

// Call posts one JSON-RPC request and returns the raw result. Server-side
// failures come back as *rpcerror.RPCError, or *rpcerror.RPCWarning for the
// advisory code; transport failures and 500/502/504 responses are retried
// with exponential backoff before surfacing as *rpcerror.ConnError.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      uuid.NewString(),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request %q: %w", method, err)
	}

	raw, err := c.post(ctx, method, body)
	if err != nil {
		return nil, err
	}

	var resp envelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &rpcerror.ProtocolError{Payload: raw, Err: err}
	}
	if resp.OK {
		return resp.Result, nil
	}
	if resp.Error == nil {
		return nil, &rpcerror.ProtocolError{Payload: raw, Err: errors.New("response carries neither result nor error")}
	}
	if resp.Error.Code == rpcerror.WarningCode {
		return nil, &rpcerror.RPCWarning{Message: resp.Error.Message}
	}
	return nil, rpcerror.NewRPCError(resp.Error.Message, resp.Error.Code, resp.Error.Data)
}

// Notify posts a request without waiting for its outcome. The call runs on
// its own goroutine; failures are logged.
func (c *Client) Notify(ctx context.Context, method string, params any) {
	go func() {
		if _, err := c.Call(ctx, method, params); err != nil {
			c.log.Error("notify %s: %v", method, err)
		}
	}()
}

func (c *Client) post(ctx context.Context, method string, body []byte) ([]byte, error) {
	var raw []byte
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uri, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", c.authorization())
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return &rpcerror.ConnError{Op: "post " + c.uri, Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &rpcerror.ConnError{Op: "read response", Err: err}
		}

		if retryableStatus(resp.StatusCode) {
			c.log.Warn("%s returned %d, retrying", method, resp.StatusCode)
			return &rpcerror.ConnError{Op: "post " + c.uri, Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&rpcerror.ConnError{
				Op:  "post " + c.uri,
				Err: fmt.Errorf("status %d", resp.StatusCode),
			})
		}

		raw = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(c.retryInterval)),
		c.maxTries-1,
	), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) authorization() string {
	if c.workspace != 0 {
		return "Bearer_" + c.token + "_ws" + strconv.Itoa(c.workspace)
	}
	return "Bearer_" + c.token
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}
