// Package httpauth plugs an alipayauth.Strategy into net/http and chi.
//
// The handler implements the strategy's host hooks for each request:
// redirects become HTTP redirects, soft failures a 401 (or the configured
// failure redirect), hard errors an error response, and successes are
// handed to the application's OnSuccess function.
package httpauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/simp-lee/alipayauth"
)

// SuccessFunc completes a successful login, typically by establishing a session.
type SuccessFunc func(w http.ResponseWriter, r *http.Request, user, info any)

// ErrorFunc writes the response for a hard authentication error.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Option configures the handler.
type Option func(*config)

type config struct {
	onSuccess       SuccessFunc
	onError         ErrorFunc
	failureRedirect string
	authOptions     func(*http.Request) []alipayauth.AuthOption
	logger          *zap.Logger
}

// OnSuccess sets the success handler. The default writes the user as JSON.
func OnSuccess(fn SuccessFunc) Option {
	return func(c *config) {
		if fn != nil {
			c.onSuccess = fn
		}
	}
}

// OnError sets the error handler. The default maps gateway-side failures
// to 502 and everything else to 500.
func OnError(fn ErrorFunc) Option {
	return func(c *config) {
		if fn != nil {
			c.onError = fn
		}
	}
}

// FailureRedirect sends soft failures to u instead of answering 401.
func FailureRedirect(u string) Option {
	return func(c *config) {
		c.failureRedirect = u
	}
}

// AuthOptions supplies per-request overrides such as a freshly generated state.
func AuthOptions(fn func(*http.Request) []alipayauth.AuthOption) Option {
	return func(c *config) {
		c.authOptions = fn
	}
}

// Logger sets the logger used to report failures and errors.
func Logger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Handler returns an http.Handler that runs s for every request. Mount it
// on both the login route and the callback route.
func Handler(s *alipayauth.Strategy, opts ...Option) http.Handler {
	cfg := &config{
		onSuccess: writeUser,
		onError:   writeError,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var authOpts []alipayauth.AuthOption
		if cfg.authOptions != nil {
			authOpts = cfg.authOptions(r)
		}
		s.Run(r, &host{w: w, r: r, cfg: cfg, strategy: s.Name()}, authOpts...)
	})
}

// Mount registers GET /login and GET /callback on router.
func Mount(router chi.Router, s *alipayauth.Strategy, opts ...Option) {
	h := Handler(s, opts...)
	router.Method(http.MethodGet, "/login", h)
	router.Method(http.MethodGet, "/callback", h)
}

// host implements alipayauth.Host over one request/response pair.
type host struct {
	w        http.ResponseWriter
	r        *http.Request
	cfg      *config
	strategy string
}

func (h *host) Redirect(u string, status int) {
	http.Redirect(h.w, h.r, u, status)
}

func (h *host) Fail(info any) {
	h.cfg.logger.Info("authentication failed",
		zap.String("strategy", h.strategy),
		zap.Any("info", info),
	)
	if h.cfg.failureRedirect != "" {
		http.Redirect(h.w, h.r, h.cfg.failureRedirect, http.StatusFound)
		return
	}
	http.Error(h.w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func (h *host) Error(err error) {
	h.cfg.logger.Error("authentication error",
		zap.String("strategy", h.strategy),
		zap.Error(err),
	)
	h.cfg.onError(h.w, h.r, err)
}

func (h *host) Success(user, info any) {
	h.cfg.onSuccess(h.w, h.r, user, info)
}

func writeUser(w http.ResponseWriter, _ *http.Request, user, _ any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(user)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	http.Error(w, http.StatusText(StatusFor(err)), StatusFor(err))
}

// StatusFor maps an authentication error to an HTTP status: failures on
// the gateway side are 502, everything else 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, alipayauth.ErrTransport),
		errors.Is(err, alipayauth.ErrGateway),
		errors.Is(err, alipayauth.ErrResponseFormat),
		errors.Is(err, alipayauth.ErrMalformedProfile):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
