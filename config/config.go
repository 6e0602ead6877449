// Package config loads the plaid.conf client configuration and turns it
// into ready-to-use credential and client objects.
//
// Configuration comes from one of two places. Inside a managed runtime
// (UDFs, notebooks) the connection details arrive through environment
// variables; everywhere else they are read from a plaid.conf YAML file
// discovered on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/plaidcloud/plaid-rpc/connection/jsonrpc"
	"github.com/plaidcloud/plaid-rpc/remote/auth"
)

const (
	// FileName is the configuration file's on-disk name.
	FileName = "plaid.conf"

	// ConfigDir is the per-user directory searched for FileName.
	ConfigDir = ".plaid"

	// EnvConfigFile names an explicit configuration file path.
	EnvConfigFile = "PLAID_CONFIG_FILE"
)

// Environment variables set by the managed runtime.
const (
	envRPCURI    = "__PLAID_RPC_URI__"
	envAuthToken = "__PLAID_RPC_AUTH_TOKEN__"
	envVerifySSL = "__PLAID_VERIFY_SSL__"
)

// PlaidConfig is the parsed client configuration.
type PlaidConfig struct {
	AuthToken     string `yaml:"auth_token"`
	AuthCode      string `yaml:"auth_code,omitempty"`
	ClientID      string `yaml:"client_id,omitempty"`
	ClientSecret  string `yaml:"client_secret,omitempty"`
	Hostname      string `yaml:"hostname"`
	Workspace     int    `yaml:"workspace,omitempty"`
	VerifySSL     *bool  `yaml:"verify_ssl,omitempty"`
	ProxyURL      string `yaml:"proxy_url,omitempty"`
	ProxyUser     string `yaml:"proxy_user,omitempty"`
	ProxyPassword string `yaml:"proxy_password,omitempty"`

	// path is the backing file, empty for environment-sourced configs.
	path string
	// rpcURI, when set, overrides the hostname-derived endpoint.
	rpcURI string
}

// Load resolves and parses the client configuration.
//
// When the managed-runtime environment variables are present they win and
// no file is read. Otherwise the file is taken from path when non-empty,
// then $PLAID_CONFIG_FILE, then ./plaid.conf, then ~/.plaid/plaid.conf.
// When no file can be found a zero config is returned alongside the error,
// so callers with other credential sources may ignore it.
func Load(path string) (*PlaidConfig, error) {
	if cfg, ok := fromEnvironment(); ok {
		return cfg, nil
	}

	resolved, err := resolvePath(path)
	if err != nil {
		return &PlaidConfig{}, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return &PlaidConfig{}, fmt.Errorf("read %s: %w", resolved, err)
	}

	cfg := &PlaidConfig{path: resolved}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &PlaidConfig{}, fmt.Errorf("parse %s: %w", resolved, err)
	}
	return cfg, nil
}

func fromEnvironment() (*PlaidConfig, bool) {
	uri := os.Getenv(envRPCURI)
	token := os.Getenv(envAuthToken)
	if uri == "" || token == "" {
		return nil, false
	}

	verify := os.Getenv(envVerifySSL) != "False"
	return &PlaidConfig{
		AuthToken: token,
		VerifySSL: &verify,
		rpcURI:    uri,
	}, true
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("no %s at %s: %w", FileName, path, err)
		}
		return path, nil
	}

	if env := os.Getenv(EnvConfigFile); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("no %s at $%s=%s: %w", FileName, EnvConfigFile, env, err)
		}
		return env, nil
	}

	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ConfigDir, FileName))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.New("no " + FileName + " found")
}

// Path returns the backing file, empty for environment-sourced configs.
func (c *PlaidConfig) Path() string {
	return c.path
}

// RPCURI returns the JSON-RPC endpoint: the managed-runtime override when
// present, otherwise derived from the hostname, otherwise production.
func (c *PlaidConfig) RPCURI() string {
	if c.rpcURI != "" {
		return c.rpcURI
	}
	if c.Hostname != "" {
		return "https://" + c.Hostname + "/json-rpc/"
	}
	return jsonrpc.DefaultURI
}

// VerifySSLEnabled reports whether server certificates are checked.
// Unset means verify.
func (c *PlaidConfig) VerifySSLEnabled() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

// Proxy returns the proxy settings, nil when none are configured.
func (c *PlaidConfig) Proxy() *auth.ProxyConfig {
	if c.ProxyURL == "" {
		return nil
	}
	return &auth.ProxyConfig{
		URL:      c.ProxyURL,
		User:     c.ProxyUser,
		Password: c.ProxyPassword,
	}
}

// Auth builds websocket credentials from the configured token, carrying the
// proxy settings along.
func (c *PlaidConfig) Auth() (*auth.Auth, error) {
	a, err := auth.OAuth2Auth(c.AuthToken)
	if err != nil {
		return nil, err
	}
	a.Proxy = c.Proxy()
	return a, nil
}

// RPC builds a JSON-RPC client wired with the configured endpoint,
// workspace, TLS toggle and proxy.
func (c *PlaidConfig) RPC() (*jsonrpc.Client, error) {
	return jsonrpc.New(c.AuthToken, c.RPCURI(), &jsonrpc.Options{
		Workspace:          c.Workspace,
		InsecureSkipVerify: !c.VerifySSLEnabled(),
		Proxy:              c.Proxy(),
	})
}

// Save writes the configuration back to its file. Token refresh flows use
// this to persist a newly exchanged auth token.
func (c *PlaidConfig) Save() error {
	if c.path == "" {
		return errors.New("config is not file-backed")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	return nil
}
