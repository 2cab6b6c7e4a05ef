package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/alipayauth"
	"github.com/simp-lee/alipayauth/httpauth"
	"github.com/simp-lee/alipayauth/internal/config"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo login server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			if err := a.cfg.ValidateServer(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, err := newServer(cfg, log, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type stateKey struct{}

// newServer wires the strategy, the chi router and the session cookie.
func newServer(cfg config.Config, log *zap.Logger, reg prometheus.Registerer) (http.Handler, error) {
	opts := append(cfg.ClientOptions(),
		alipayauth.WithLogger(alipayauth.NewZapLogger(log)),
		alipayauth.WithMetrics(reg),
	)
	client, err := alipayauth.NewClient(cfg.AppID, opts...)
	if err != nil {
		return nil, err
	}

	strategy, err := alipayauth.NewStrategy(client,
		func(ctx context.Context, accessToken, refreshToken string, p *alipayauth.Profile) (any, any, error) {
			if p.ID == "" {
				return nil, "profile has no user id", nil
			}
			return userFromProfile(p), nil, nil
		},
		alipayauth.WithDefaultScope(cfg.Scope),
		alipayauth.WithDefaultState(cfg.State),
		alipayauth.WithDefaultCallbackURL(cfg.CallbackURL),
		alipayauth.WithFailureRedirect(cfg.FailureRedirect),
	)
	if err != nil {
		return nil, err
	}

	sess := &sessions{secret: []byte(cfg.SessionSecret), ttl: cfg.SessionTTL, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if g, ok := reg.(prometheus.Gatherer); ok {
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}

	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		u, err := sess.fromRequest(r)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(u)
	})

	r.Route("/auth/alipay", func(r chi.Router) {
		r.Use(stateGuard(log))
		httpauth.Mount(r, strategy,
			httpauth.Logger(log),
			httpauth.FailureRedirect(cfg.FailureRedirect),
			httpauth.AuthOptions(func(r *http.Request) []alipayauth.AuthOption {
				if st, ok := r.Context().Value(stateKey{}).(string); ok {
					return []alipayauth.AuthOption{alipayauth.WithState(st)}
				}
				return nil
			}),
			httpauth.OnSuccess(func(w http.ResponseWriter, r *http.Request, user, _ any) {
				u, ok := user.(*sessionUser)
				if !ok {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if err := sess.set(w, r, u); err != nil {
					log.Error("issue session", zap.Error(err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				log.Info("user signed in", zap.String("user_id", u.ID), zap.String("request_id", middleware.GetReqID(r.Context())))
				http.Redirect(w, r, "/me", http.StatusFound)
			}),
		)
	})

	return r, nil
}

// stateGuard issues a fresh state cookie on initiation requests and checks
// it on callbacks that carry an auth_code.
func stateGuard(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			switch {
			case q.Get("auth_code") != "":
				c, err := r.Cookie(stateCookie)
				if err != nil || alipayauth.ValidateState(c.Value, q.Get("state")) != nil {
					log.Warn("state check failed", zap.String("request_id", middleware.GetReqID(r.Context())))
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
					return
				}
				http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})
			case q.Get("state") == "" && q.Get("error") == "":
				st := uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     stateCookie,
					Value:    st,
					Path:     "/",
					HttpOnly: true,
					Secure:   r.TLS != nil,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   600,
				})
				r = r.WithContext(context.WithValue(r.Context(), stateKey{}, st))
			}
			next.ServeHTTP(w, r)
		})
	}
}
