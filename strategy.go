package alipayauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultStrategyName = "alipay"
	defaultScope        = "auth_user"
	defaultState        = "ALIPAY"

	scopeBase = "auth_base"
	scopeUser = "auth_user"
)

// VerifyFunc maps the authenticated credentials and profile to an
// application user. Returning a non-nil err is a hard error, a nil user a
// soft failure described by info, and a non-nil user a success.
type VerifyFunc func(ctx context.Context, accessToken, refreshToken string, profile *Profile) (user any, info any, err error)

// VerifyRequestFunc is VerifyFunc with the incoming request passed through.
type VerifyRequestFunc func(r *http.Request, accessToken, refreshToken string, profile *Profile) (user any, info any, err error)

// StrategyOption configures a Strategy.
type StrategyOption func(*strategyConfig)

type strategyConfig struct {
	name            string
	scope           string
	state           string
	callbackURL     string
	failureRedirect string
}

// WithName sets the name the strategy is registered under. Defaults to "alipay".
func WithName(name string) StrategyOption {
	return func(cfg *strategyConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithDefaultScope sets the scope used when none is given per call. Defaults to "auth_user".
func WithDefaultScope(scope string) StrategyOption {
	return func(cfg *strategyConfig) {
		cfg.scope = scope
	}
}

// WithDefaultState sets the state token used when none is given per call. Defaults to "ALIPAY".
func WithDefaultState(state string) StrategyOption {
	return func(cfg *strategyConfig) {
		cfg.state = state
	}
}

// WithDefaultCallbackURL sets the redirect_uri used when none is given per call.
func WithDefaultCallbackURL(callbackURL string) StrategyOption {
	return func(cfg *strategyConfig) {
		cfg.callbackURL = callbackURL
	}
}

// WithFailureRedirect sets where the user agent is sent when Alipay reports
// an error on what would otherwise be an initiation request.
func WithFailureRedirect(u string) StrategyOption {
	return func(cfg *strategyConfig) {
		cfg.failureRedirect = u
	}
}

// Strategy drives the login cycle: redirect, callback, token exchange,
// profile fetch and verify. It holds no per-request state and is safe for
// concurrent use.
type Strategy struct {
	name            string
	client          *Client
	verify          VerifyRequestFunc
	passReq         bool
	scope           string
	state           string
	callbackURL     string
	failureRedirect string
}

// NewStrategy creates a Strategy whose verify callback does not see the request.
func NewStrategy(client *Client, verify VerifyFunc, opts ...StrategyOption) (*Strategy, error) {
	if verify == nil {
		return nil, newAuthError(ErrKindConfiguration, "", "strategy requires a verify callback", nil)
	}
	return newStrategy(client, func(r *http.Request, accessToken, refreshToken string, profile *Profile) (any, any, error) {
		return verify(r.Context(), accessToken, refreshToken, profile)
	}, false, opts)
}

// NewStrategyWithRequest creates a Strategy that passes the incoming request
// to its verify callback.
func NewStrategyWithRequest(client *Client, verify VerifyRequestFunc, opts ...StrategyOption) (*Strategy, error) {
	if verify == nil {
		return nil, newAuthError(ErrKindConfiguration, "", "strategy requires a verify callback", nil)
	}
	return newStrategy(client, verify, true, opts)
}

func newStrategy(client *Client, verify VerifyRequestFunc, passReq bool, opts []StrategyOption) (*Strategy, error) {
	if client == nil {
		return nil, newAuthError(ErrKindConfiguration, "", "strategy requires a client", nil)
	}
	cfg := &strategyConfig{name: defaultStrategyName}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return &Strategy{
		name:            cfg.name,
		client:          client,
		verify:          verify,
		passReq:         passReq,
		scope:           cfg.scope,
		state:           cfg.state,
		callbackURL:     cfg.callbackURL,
		failureRedirect: cfg.failureRedirect,
	}, nil
}

// Name returns the strategy name.
func (s *Strategy) Name() string {
	return s.name
}

// PassesRequest reports whether the verify callback receives the request.
func (s *Strategy) PassesRequest() bool {
	return s.passReq
}

// Run authenticates r and reports the outcome through h.
func (s *Strategy) Run(r *http.Request, h Host, opts ...AuthOption) {
	s.Authenticate(r, opts...).Dispatch(h)
}

// Authenticate handles one request. Without auth_code it either rejects a
// callback (state present), sends the user to the failure redirect, or
// redirects to the Alipay consent page. With auth_code it exchanges the
// code, builds the profile and calls the verify callback.
func (s *Strategy) Authenticate(r *http.Request, opts ...AuthOption) Result {
	res := s.authenticate(r, newAuthConfig(opts...))
	s.client.metrics.ObserveAuthentication(string(res.Kind))
	if res.Kind == ResultError {
		s.client.logger.Warn("alipay authentication error", "provider", providerName, "strategy", s.name, "error", res.Err)
	}
	return res
}

func (s *Strategy) authenticate(r *http.Request, cfg *authConfig) Result {
	q := r.URL.Query()
	authCode := q.Get("auth_code")
	scope := firstNonEmpty(cfg.scope, s.scope, defaultScope)

	if authCode != "" {
		s.client.logger.Debug("alipay callback", "provider", providerName, "url", maskURL(r.URL.String()))
		return s.callback(r, authCode, scope)
	}

	if q.Get("state") != "" {
		return failResult(newAuthError(ErrKindRejected, "", "callback carries state but no auth_code", nil))
	}

	if s.failureRedirect != "" && q.Get("error") != "" {
		return redirectResult(s.failureRedirect)
	}

	callbackURL := firstNonEmpty(cfg.callbackURL, s.callbackURL)
	if callbackURL == "" {
		return errorResult(newAuthError(ErrKindConfiguration, "", "callback URL is not configured", nil))
	}
	state := firstNonEmpty(cfg.state, s.state, defaultState)

	u := s.client.AuthURL(scope, state, callbackURL)
	s.client.logger.Debug("alipay redirect", "provider", providerName, "url", u)
	return redirectResult(u)
}

func (s *Strategy) callback(r *http.Request, authCode, scope string) Result {
	ctx := r.Context()

	token, err := s.client.ExchangeToken(ctx, authCode)
	if err != nil {
		return errorResult(err)
	}
	if token.AccessToken == "" {
		return errorResult(newAuthError(ErrKindResponseFormat, "", "token response has no access_token", nil))
	}

	var profile *Profile
	if baseOnly(scope) {
		id := token.UserID
		if id == "" {
			id = token.OpenID
		}
		if id == "" {
			return errorResult(newAuthError(ErrKindMalformedProfile, "", "token response has no user_id", nil))
		}
		profile = &Profile{ID: id}
	} else {
		raw, err := s.client.FetchUserInfo(ctx, token.AccessToken)
		if err != nil {
			s.client.logger.Debug("alipay fetch user info failed", "provider", providerName, "error", err)
			return errorResult(err)
		}
		profile, err = ParseProfile(raw)
		if err != nil {
			return errorResult(err)
		}
		s.client.logger.Debug("alipay userinfo retrieved",
			"provider", providerName,
			"user_id", profile.ID,
			"nickname", profile.DisplayName,
		)
	}

	return s.invokeVerify(r, token, profile)
}

// invokeVerify calls the consumer callback, converting a panic into a
// consumer_callback error.
func (s *Strategy) invokeVerify(r *http.Request, token *Token, profile *Profile) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			cause, _ := p.(error)
			res = errorResult(newAuthError(ErrKindConsumerCallback, "", fmt.Sprintf("verify callback panicked: %v", p), cause))
		}
	}()

	user, info, err := s.verify(r, token.AccessToken, token.RefreshToken, profile)
	if err != nil {
		return errorResult(err)
	}
	if user == nil {
		return failResult(info)
	}
	return successResult(user, info)
}

// baseOnly reports whether scope asks for the user id alone. A scope that
// names both auth_base and auth_user still fetches the full profile.
func baseOnly(scope string) bool {
	return strings.Contains(scope, scopeBase) && !strings.Contains(scope, scopeUser)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
