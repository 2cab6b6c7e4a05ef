package alipayauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines the interface for structured logging used by the client
// and the strategy. Implementations should treat args as key-value pairs
// (e.g. "key1", val1, "key2", val2).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a Logger that discards all log messages.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, args ...any) {}
func (n *noopLogger) Info(msg string, args ...any)  {}
func (n *noopLogger) Warn(msg string, args ...any)  {}
func (n *noopLogger) Error(msg string, args ...any) {}

// Option is a functional option for configuring a Client or a Signer.
type Option func(*clientConfig)

// clientConfig holds the construction-time configuration of a Client.
type clientConfig struct {
	httpClient   *http.Client
	logger       Logger
	registerer   prometheus.Registerer
	gateway      string
	authorizeURL string
	sandbox      bool
	now          func() time.Time

	privateKey  keySource
	publicKey   keySource
	keyCacheTTL time.Duration
	keyErrs     []string
}

// newClientConfig creates a new clientConfig with sensible defaults
// and applies the given options.
func newClientConfig(opts ...Option) *clientConfig {
	cfg := &clientConfig{
		httpClient:   newDefaultHTTPClient(),
		logger:       &noopLogger{},
		authorizeURL: alipayAuthorizeURL,
		now:          time.Now,
		keyCacheTTL:  defaultKeyCacheTTL,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	return cfg
}

func (cfg *clientConfig) validateKeySources() error {
	if len(cfg.keyErrs) > 0 {
		return newAuthError(ErrKindConfiguration, "", strings.Join(cfg.keyErrs, "; "), nil)
	}
	return nil
}

// asConfigError reports construction-time key failures as configuration errors.
func asConfigError(err error) error {
	var ae *AuthError
	if errors.As(err, &ae) && ae.Kind == ErrKindKey {
		return newAuthError(ErrKindConfiguration, "", "invalid key material: "+ae.Message, err)
	}
	return err
}

// WithHTTPClient returns an Option that sets the HTTP client used for
// gateway calls. If client is nil, the default client (10s timeout) is kept.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *clientConfig) {
		if client != nil {
			cfg.httpClient = client
		}
	}
}

// WithLogger returns an Option that sets the logger. If l is nil, a no-op logger is used.
func WithLogger(l Logger) Option {
	return func(cfg *clientConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithPrivateKey sets the application's RSA private key from PEM (PKCS1 or
// PKCS8) or raw base64 material.
func WithPrivateKey(material string) Option {
	return func(cfg *clientConfig) {
		if cfg.privateKey.path != "" {
			cfg.keyErrs = append(cfg.keyErrs, "private key given both as material and as file")
		}
		cfg.privateKey.material = material
	}
}

// WithPrivateKeyFile sets the path of a PEM file holding the application's
// RSA private key.
func WithPrivateKeyFile(path string) Option {
	return func(cfg *clientConfig) {
		if cfg.privateKey.material != "" {
			cfg.keyErrs = append(cfg.keyErrs, "private key given both as material and as file")
		}
		cfg.privateKey.path = path
	}
}

// WithAlipayPublicKey sets the Alipay public key used for signature
// verification and encryption, from PEM (PKIX or PKCS1) or raw base64 material.
func WithAlipayPublicKey(material string) Option {
	return func(cfg *clientConfig) {
		if cfg.publicKey.path != "" {
			cfg.keyErrs = append(cfg.keyErrs, "alipay public key given both as material and as file")
		}
		cfg.publicKey.material = material
	}
}

// WithAlipayPublicKeyFile sets the path of a PEM file holding the Alipay public key.
func WithAlipayPublicKeyFile(path string) Option {
	return func(cfg *clientConfig) {
		if cfg.publicKey.material != "" {
			cfg.keyErrs = append(cfg.keyErrs, "alipay public key given both as material and as file")
		}
		cfg.publicKey.path = path
	}
}

// WithKeyCacheTTL sets how long keys loaded from files are reused before
// the files are read again. Zero reads the key files on every operation.
func WithKeyCacheTTL(d time.Duration) Option {
	return func(cfg *clientConfig) {
		if d >= 0 {
			cfg.keyCacheTTL = d
		}
	}
}

// WithGateway overrides the gateway endpoint, mostly for tests against a mock server.
func WithGateway(gatewayURL string) Option {
	return func(cfg *clientConfig) {
		cfg.gateway = gatewayURL
	}
}

// WithSandbox returns an Option that sets the gateway to the Alipay sandbox.
// An explicit WithGateway takes precedence.
func WithSandbox() Option {
	return func(cfg *clientConfig) {
		cfg.sandbox = true
	}
}

// WithAuthorizeURL overrides the base URL users are redirected to for consent.
func WithAuthorizeURL(authorizeURL string) Option {
	return func(cfg *clientConfig) {
		if authorizeURL != "" {
			cfg.authorizeURL = authorizeURL
		}
	}
}

// WithMetrics registers gateway and authentication metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *clientConfig) {
		cfg.registerer = reg
	}
}

func withClock(now func() time.Time) Option {
	return func(cfg *clientConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// AuthOption overrides strategy defaults for a single Authenticate call.
type AuthOption func(*authConfig)

// authConfig holds per-invocation overrides.
type authConfig struct {
	scope       string
	state       string
	callbackURL string
}

// newAuthConfig creates a new authConfig and applies the given options.
func newAuthConfig(opts ...AuthOption) *authConfig {
	cfg := &authConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	return cfg
}

// WithScope returns an AuthOption that sets the OAuth scope ("auth_user" or "auth_base").
func WithScope(scope string) AuthOption {
	return func(cfg *authConfig) {
		cfg.scope = scope
	}
}

// WithState returns an AuthOption that sets the state token sent to Alipay.
func WithState(state string) AuthOption {
	return func(cfg *authConfig) {
		cfg.state = state
	}
}

// WithCallbackURL returns an AuthOption that sets the redirect_uri sent to Alipay.
func WithCallbackURL(callbackURL string) AuthOption {
	return func(cfg *authConfig) {
		cfg.callbackURL = callbackURL
	}
}

// sensitiveKeys lists substrings that indicate a field value should be masked.
var sensitiveKeys = []string{"token", "secret", "key", "password", "code", "sign"}

// maskSensitive masks the value if the key contains a sensitive substring
// (case-insensitive). Sensitive values are returned as the first 4 characters
// followed by "****". If the value has fewer than 4 characters, "****" is returned.
// Non-sensitive values are returned unchanged.
func maskSensitive(key, value string) string {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			if len(value) >= 4 {
				return value[:4] + "****"
			}
			return "****"
		}
	}
	return value
}
