package alipayauth

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewClientConfig_Defaults(t *testing.T) {
	cfg := newClientConfig()
	assert.Equal(t, 10*time.Second, cfg.httpClient.Timeout)
	assert.IsType(t, &noopLogger{}, cfg.logger)
	assert.Equal(t, alipayAuthorizeURL, cfg.authorizeURL)
	assert.Equal(t, defaultKeyCacheTTL, cfg.keyCacheTTL)
	assert.Nil(t, cfg.registerer)
	assert.False(t, cfg.sandbox)
	assert.NoError(t, cfg.validateKeySources())
}

func TestClientOptions(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	reg := prometheus.NewRegistry()
	clock := func() time.Time { return testNow }

	cfg := newClientConfig(
		nil,
		WithHTTPClient(hc),
		WithLogger(&noopLogger{}),
		WithGateway("http://gw"),
		WithSandbox(),
		WithAuthorizeURL("http://authorize"),
		WithMetrics(reg),
		WithKeyCacheTTL(time.Minute),
		withClock(clock),
	)
	assert.Same(t, hc, cfg.httpClient)
	assert.Equal(t, "http://gw", cfg.gateway)
	assert.True(t, cfg.sandbox)
	assert.Equal(t, "http://authorize", cfg.authorizeURL)
	assert.Same(t, reg, cfg.registerer)
	assert.Equal(t, time.Minute, cfg.keyCacheTTL)
	assert.Equal(t, testNow, cfg.now())
}

func TestClientOptions_IgnoreInvalidValues(t *testing.T) {
	cfg := newClientConfig(
		WithHTTPClient(nil),
		WithLogger(nil),
		WithAuthorizeURL(""),
		WithKeyCacheTTL(-time.Second),
		withClock(nil),
	)
	assert.NotNil(t, cfg.httpClient)
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, alipayAuthorizeURL, cfg.authorizeURL)
	assert.Equal(t, defaultKeyCacheTTL, cfg.keyCacheTTL)
	assert.NotNil(t, cfg.now)
}

func TestKeyOptions_MaterialAndFileConflict(t *testing.T) {
	tests := map[string][]Option{
		"private material then file": {WithPrivateKey("k"), WithPrivateKeyFile("f")},
		"private file then material": {WithPrivateKeyFile("f"), WithPrivateKey("k")},
		"public material then file":  {WithAlipayPublicKey("k"), WithAlipayPublicKeyFile("f")},
		"public file then material":  {WithAlipayPublicKeyFile("f"), WithAlipayPublicKey("k")},
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, newClientConfig(opts...).validateKeySources(), ErrConfiguration)
		})
	}
}

func TestAuthOptions(t *testing.T) {
	cfg := newAuthConfig(nil, WithScope("auth_base"), WithState("s"), WithCallbackURL("https://cb"))
	assert.Equal(t, &authConfig{scope: "auth_base", state: "s", callbackURL: "https://cb"}, cfg)
	assert.Equal(t, &authConfig{}, newAuthConfig())
}
