// Package auth carries the credentials a connection presents to the server.
//
// The server authenticates a websocket upgrade from a set of PlaidCloud-*
// headers; Package builds them. An Auth may also carry proxy settings for
// deployments that reach the server through an intermediary.
package auth

import (
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/plaidcloud/plaid-rpc/rpcerror"
)

// Method identifies how a connection authenticates.
type Method string

const (
	// MethodUser authenticates with login credentials.
	MethodUser Method = "user"
	// MethodAgent authenticates a PlaidLink agent with its key pair.
	MethodAgent Method = "agent"
	// MethodTransform authenticates a transform run by task and session.
	MethodTransform Method = "transform"
	// MethodOAuth2 authenticates with a bearer token.
	MethodOAuth2 Method = "oauth2"
)

// ProxyConfig holds optional proxy traversal settings. A zero URL means no
// proxying is attempted.
type ProxyConfig struct {
	URL      string
	User     string
	Password string
}

// Auth is a validated credential handle. It is read-only to the connection
// layer; the only mutable piece is the attempt counter.
type Auth struct {
	method     Method
	publicKey  string
	privateKey string
	mfa        string

	// Proxy, when set, routes the connection through an intermediary.
	Proxy *ProxyConfig

	attempts atomic.Int64
}

// UserAuth builds credentials for user login connections. multiFactor may be
// empty when the account has no MFA configured.
func UserAuth(userName, password, multiFactor string) (*Auth, error) {
	if userName == "" || password == "" {
		return nil, &rpcerror.AuthError{Reason: "user auth requires a user name and password"}
	}
	return &Auth{
		method:     MethodUser,
		publicKey:  userName,
		privateKey: password,
		mfa:        multiFactor,
	}, nil
}

// AgentAuth builds credentials for PlaidLink agent connections using the key
// pair registered with the server.
func AgentAuth(publicKey, privateKey string) (*Auth, error) {
	if publicKey == "" || privateKey == "" {
		return nil, &rpcerror.AuthError{Reason: "agent auth requires a public and private key"}
	}
	return &Auth{
		method:     MethodAgent,
		publicKey:  publicKey,
		privateKey: privateKey,
	}, nil
}

// TransformAuth builds credentials for transform connections identified by
// the transform task and its session.
func TransformAuth(taskID, sessionID string) (*Auth, error) {
	if taskID == "" || sessionID == "" {
		return nil, &rpcerror.AuthError{Reason: "transform auth requires a task id and session id"}
	}
	return &Auth{
		method:     MethodTransform,
		publicKey:  taskID,
		privateKey: sessionID,
	}, nil
}

// OAuth2Auth builds token-based credentials.
func OAuth2Auth(token string) (*Auth, error) {
	if token == "" {
		return nil, &rpcerror.AuthError{Reason: "oauth2 auth requires a token"}
	}
	return &Auth{
		method:    MethodOAuth2,
		publicKey: token,
	}, nil
}

// Method returns the authentication method.
func (a *Auth) Method() Method {
	return a.method
}

// Attempts returns how many times Package has been called. The server uses
// the count to throttle repeated failed logins.
func (a *Auth) Attempts() int {
	return int(a.attempts.Load())
}

// Package resolves the credential handle into connection headers.
func (a *Auth) Package() http.Header {
	h := http.Header{}
	h.Set("PlaidCloud-Auth-Method", string(a.method))
	h.Set("PlaidCloud-Key", a.publicKey)
	h.Set("PlaidCloud-Pass", a.privateKey)
	if a.mfa != "" {
		h.Set("PlaidCloud-MFA", a.mfa)
	}
	h.Set("PlaidCloud-Timestamp", strconv.FormatInt(time.Now().UTC().Unix(), 10))

	a.attempts.Add(1)

	return h
}

// ProxySettings maps transport schemes to proxy URLs with the credentials
// embedded in the authority. An Auth without proxy configuration yields an
// empty map, meaning no proxying.
func (a *Auth) ProxySettings() (map[string]string, error) {
	if a == nil || a.Proxy == nil {
		return map[string]string{}, nil
	}
	return a.Proxy.Settings()
}

// Settings maps transport schemes to proxy URLs with the credentials
// embedded in the authority. A config without a URL yields an empty map.
func (p *ProxyConfig) Settings() (map[string]string, error) {
	settings := map[string]string{}
	if p == nil || p.URL == "" {
		return settings, nil
	}

	parsed, err := url.Parse(p.URL)
	if err != nil {
		return nil, err
	}

	// A bare hostname parses entirely into the path component.
	host := parsed.Host + parsed.Path
	if host == "" {
		host = p.URL
	}

	authority := host
	if p.User != "" || p.Password != "" {
		authority = p.User + ":" + p.Password + "@" + host
	}

	for _, scheme := range []string{"http", "https"} {
		settings[scheme] = scheme + "://" + authority
	}
	return settings, nil
}
