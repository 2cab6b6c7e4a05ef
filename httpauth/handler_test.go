package httpauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/simp-lee/alipayauth"
)

// gatewayStub answers token and user-info calls with fixed ASCII bodies,
// which are byte-identical in GBK.
func gatewayStub(t *testing.T, token, userInfo string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.PostForm.Get("method") {
		case "alipay.system.oauth.token":
			_, _ = w.Write([]byte(token))
		case "alipay.user.info.share":
			_, _ = w.Write([]byte(userInfo))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

const (
	tokenBody    = `{"alipay_system_oauth_token_response":{"access_token":"tok1","refresh_token":"ref1","user_id":"2088xxx"}}`
	userInfoBody = `{"alipay_user_info_share_response":{"code":"10000","user_id":"2088xxx","nick_name":"nick","avatar":"https://img/a.png"}}`
)

func newStrategy(t *testing.T, gateway string, verify alipayauth.VerifyFunc) *alipayauth.Strategy {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	client, err := alipayauth.NewClient("2021000000000001",
		alipayauth.WithPrivateKey(string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))),
		alipayauth.WithAlipayPublicKey(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))),
		alipayauth.WithGateway(gateway),
	)
	require.NoError(t, err)

	if verify == nil {
		verify = func(_ context.Context, _, _ string, p *alipayauth.Profile) (any, any, error) {
			return map[string]string{"id": p.ID, "name": p.DisplayName}, nil, nil
		}
	}
	s, err := alipayauth.NewStrategy(client, verify, alipayauth.WithDefaultCallbackURL("https://app.example.com/auth/alipay/callback"))
	require.NoError(t, err)
	return s
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestMount_LoginRedirects(t *testing.T) {
	gw := gatewayStub(t, tokenBody, userInfoBody)
	r := chi.NewRouter()
	Mount(r, newStrategy(t, gw.URL, nil))

	rec := serve(r, "/login")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "openauth.alipay.com", loc.Host)
	assert.Equal(t, "https://app.example.com/auth/alipay/callback", loc.Query().Get("redirect_uri"))
	assert.Equal(t, "ALIPAY", loc.Query().Get("state"))
}

func TestMount_OnlyGET(t *testing.T) {
	gw := gatewayStub(t, tokenBody, userInfoBody)
	r := chi.NewRouter()
	Mount(r, newStrategy(t, gw.URL, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_AuthOptions(t *testing.T) {
	gw := gatewayStub(t, tokenBody, userInfoBody)
	h := Handler(newStrategy(t, gw.URL, nil), AuthOptions(func(r *http.Request) []alipayauth.AuthOption {
		return []alipayauth.AuthOption{alipayauth.WithState("per-request"), alipayauth.WithScope("auth_base")}
	}))

	rec := serve(h, "/login")
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "per-request", loc.Query().Get("state"))
	assert.Equal(t, "auth_base", loc.Query().Get("scope"))
}

func TestHandler_CallbackSuccessDefaultWritesJSON(t *testing.T) {
	gw := gatewayStub(t, tokenBody, userInfoBody)
	h := Handler(newStrategy(t, gw.URL, nil))

	rec := serve(h, "/callback?auth_code=code123&state=ALIPAY")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]string{"id": "2088xxx", "name": "nick"}, got)
}

func TestHandler_OnSuccess(t *testing.T) {
	gw := gatewayStub(t, tokenBody, userInfoBody)
	var gotUser, gotInfo any
	h := Handler(newStrategy(t, gw.URL, func(_ context.Context, _, _ string, p *alipayauth.Profile) (any, any, error) {
		return p.ID, "first login", nil
	}), OnSuccess(func(w http.ResponseWriter, r *http.Request, user, info any) {
		gotUser, gotInfo = user, info
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(h, "/callback?auth_code=code123")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2088xxx", gotUser)
	assert.Equal(t, "first login", gotInfo)
}

func TestHandler_Fail(t *testing.T) {
	gw := gatewayStub(t, tokenBody, userInfoBody)
	rejecting := func(context.Context, string, string, *alipayauth.Profile) (any, any, error) {
		return nil, "not allowed", nil
	}

	core, logs := observer.New(zapcore.InfoLevel)
	h := Handler(newStrategy(t, gw.URL, rejecting), Logger(zap.New(core)))
	rec := serve(h, "/callback?auth_code=code123")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("authentication failed").Len())

	h = Handler(newStrategy(t, gw.URL, rejecting), FailureRedirect("/login?failed=1"))
	rec = serve(h, "/callback?auth_code=code123")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?failed=1", rec.Header().Get("Location"))

	// state without auth_code is a soft failure too.
	rec = serve(h, "/callback?state=ALIPAY")
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestHandler_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		userInfo string
		verify   alipayauth.VerifyFunc
		want     int
	}{
		{"gateway error", `{"error_response":{"msg":"Invalid Arguments"}}`, userInfoBody, nil, http.StatusBadGateway},
		{"malformed token response", `not json`, userInfoBody, nil, http.StatusBadGateway},
		{"malformed profile", tokenBody, `{"alipay_user_info_share_response":{"code":"10000"}}`, nil, http.StatusBadGateway},
		{
			name: "verify error", token: tokenBody, userInfo: userInfoBody, want: http.StatusInternalServerError,
			verify: func(context.Context, string, string, *alipayauth.Profile) (any, any, error) {
				return nil, nil, errors.New("db down")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := gatewayStub(t, tt.token, tt.userInfo)
			core, logs := observer.New(zapcore.ErrorLevel)
			h := Handler(newStrategy(t, gw.URL, tt.verify), Logger(zap.New(core)))

			rec := serve(h, "/callback?auth_code=code123")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, 1, logs.FilterMessage("authentication error").Len())
		})
	}
}

func TestHandler_OnError(t *testing.T) {
	gw := gatewayStub(t, `{"error_response":{"msg":"Invalid Arguments"}}`, userInfoBody)
	var got error
	h := Handler(newStrategy(t, gw.URL, nil), OnError(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		http.Redirect(w, r, "/oops", http.StatusFound)
	}))

	rec := serve(h, "/callback?auth_code=code123")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.ErrorIs(t, got, alipayauth.ErrGateway)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, StatusFor(alipayauth.ErrTransport))
	assert.Equal(t, http.StatusBadGateway, StatusFor(alipayauth.ErrGateway))
	assert.Equal(t, http.StatusBadGateway, StatusFor(alipayauth.ErrResponseFormat))
	assert.Equal(t, http.StatusBadGateway, StatusFor(alipayauth.ErrMalformedProfile))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(alipayauth.ErrConfiguration))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(alipayauth.ErrConsumerCallback))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("other")))
}
