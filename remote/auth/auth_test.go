package auth

import (
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaidcloud/plaid-rpc/rpcerror"
)

func TestConstructorsValidate(t *testing.T) {
	cases := []struct {
		name string
		make func() (*Auth, error)
		ok   bool
	}{
		{"user", func() (*Auth, error) { return UserAuth("paul", "secret", "") }, true},
		{"user missing password", func() (*Auth, error) { return UserAuth("paul", "", "") }, false},
		{"agent", func() (*Auth, error) { return AgentAuth("pub", "priv") }, true},
		{"agent missing key", func() (*Auth, error) { return AgentAuth("", "priv") }, false},
		{"transform", func() (*Auth, error) { return TransformAuth("task-1", "sess-1") }, true},
		{"transform missing session", func() (*Auth, error) { return TransformAuth("task-1", "") }, false},
		{"oauth2", func() (*Auth, error) { return OAuth2Auth("tok") }, true},
		{"oauth2 empty token", func() (*Auth, error) { return OAuth2Auth("") }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := tc.make()
			if tc.ok {
				require.NoError(t, err)
				require.NotNil(t, a)
			} else {
				require.Error(t, err)
				var authErr *rpcerror.AuthError
				assert.ErrorAs(t, err, &authErr)
			}
		})
	}
}

func TestPackageHeaders(t *testing.T) {
	a, err := UserAuth("paul", "secret", "123456")
	require.NoError(t, err)

	before := time.Now().UTC().Unix()
	h := a.Package()

	assert.Equal(t, "user", h.Get("PlaidCloud-Auth-Method"))
	assert.Equal(t, "paul", h.Get("PlaidCloud-Key"))
	assert.Equal(t, "secret", h.Get("PlaidCloud-Pass"))
	assert.Equal(t, "123456", h.Get("PlaidCloud-MFA"))

	ts, err := strconv.ParseInt(h.Get("PlaidCloud-Timestamp"), 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts, before)

	assert.Equal(t, 1, a.Attempts())
	a.Package()
	assert.Equal(t, 2, a.Attempts())
}

func TestPackageOmitsEmptyMFA(t *testing.T) {
	a, err := AgentAuth("pub", "priv")
	require.NoError(t, err)

	h := a.Package()
	_, present := h[http.CanonicalHeaderKey("PlaidCloud-MFA")]
	assert.False(t, present, "MFA header should be omitted when unset")
}

func TestProxySettingsEmptyWithoutProxy(t *testing.T) {
	a, err := OAuth2Auth("tok")
	require.NoError(t, err)

	settings, err := a.ProxySettings()
	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestProxySettingsEmbedsCredentials(t *testing.T) {
	a, err := OAuth2Auth("tok")
	require.NoError(t, err)
	a.Proxy = &ProxyConfig{URL: "proxy.example.com:3128", User: "u", Password: "p"}

	settings, err := a.ProxySettings()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"http":  "http://u:p@proxy.example.com:3128",
		"https": "https://u:p@proxy.example.com:3128",
	}, settings)
}

func TestProxySettingsWithoutCredentials(t *testing.T) {
	a, err := OAuth2Auth("tok")
	require.NoError(t, err)
	a.Proxy = &ProxyConfig{URL: "proxy.example.com"}

	settings, err := a.ProxySettings()
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.example.com", settings["http"])
	assert.Equal(t, "https://proxy.example.com", settings["https"])
}

func TestProxyFunc(t *testing.T) {
	a, err := OAuth2Auth("tok")
	require.NoError(t, err)

	// No proxy configured: nil selector means direct connection.
	fn, err := a.ProxyFunc()
	require.NoError(t, err)
	assert.Nil(t, fn)

	a.Proxy = &ProxyConfig{URL: "proxy.example.com:3128", User: "u", Password: "p"}
	fn, err = a.ProxyFunc()
	require.NoError(t, err)
	require.NotNil(t, fn)

	req, err := http.NewRequest(http.MethodGet, "http://plaidcloud.com/socket", nil)
	require.NoError(t, err)

	proxyURL, err := fn(req)
	require.NoError(t, err)
	require.NotNil(t, proxyURL)
	assert.Equal(t, "proxy.example.com:3128", proxyURL.Host)
	assert.Equal(t, url.UserPassword("u", "p").String(), proxyURL.User.String())
}
