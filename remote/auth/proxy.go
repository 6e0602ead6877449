package auth

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// ProxyFunc converts a proxy configuration's scheme map into a proxy
// selection function usable by both http.Transport and the websocket
// dialer. It returns nil when no proxy is configured, which the transports
// treat as a direct connection.
func ProxyFunc(p *ProxyConfig) (func(*http.Request) (*url.URL, error), error) {
	settings, err := p.Settings()
	if err != nil {
		return nil, err
	}
	if len(settings) == 0 {
		return nil, nil
	}

	cfg := &httpproxy.Config{
		HTTPProxy:  settings["http"],
		HTTPSProxy: settings["https"],
	}
	choose := cfg.ProxyFunc()

	return func(req *http.Request) (*url.URL, error) {
		return choose(req.URL)
	}, nil
}

// ProxyFunc is the selection function for the Auth's proxy settings.
func (a *Auth) ProxyFunc() (func(*http.Request) (*url.URL, error), error) {
	if a == nil {
		return nil, nil
	}
	return ProxyFunc(a.Proxy)
}
