package alipayauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var (
	testKeysOnce sync.Once
	testKeys     [2]*rsa.PrivateKey
	testKeysErr  error
)

// testRSAKey returns one of two process-wide 2048-bit keys.
func testRSAKey(t *testing.T, i int) *rsa.PrivateKey {
	t.Helper()
	testKeysOnce.Do(func() {
		for n := range testKeys {
			testKeys[n], testKeysErr = rsa.GenerateKey(rand.Reader, 2048)
			if testKeysErr != nil {
				return
			}
		}
	})
	require.NoError(t, testKeysErr, "generate RSA key")
	return testKeys[i]
}

func testPKCS1PEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func testPKCS8PEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func testPKIXPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// testKeyOptions configures the app private key and, as the "Alipay"
// public key, the public half of the same key, so signatures made by the
// client verify locally.
func testKeyOptions(t *testing.T) []Option {
	t.Helper()
	key := testRSAKey(t, 0)
	return []Option{
		WithPrivateKey(testPKCS1PEM(key)),
		WithAlipayPublicKey(testPKIXPEM(t, &key.PublicKey)),
	}
}

var testNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

func newTestClient(t *testing.T, gateway string, opts ...Option) *Client {
	t.Helper()
	all := append(testKeyOptions(t), WithGateway(gateway), withClock(func() time.Time { return testNow }))
	c, err := NewClient("2021000000000001", append(all, opts...)...)
	require.NoError(t, err)
	return c
}

func gbk(t *testing.T, s string) []byte {
	t.Helper()
	b, err := simplifiedchinese.GBK.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(b)
}

// fakeGateway is an httptest-backed stand-in for gateway.do. It checks the
// RSA2 signature of every request and answers with GBK-encoded bodies
// keyed by the "method" form field.
type fakeGateway struct {
	t   *testing.T
	pub *rsa.PublicKey
	srv *httptest.Server

	mu        sync.Mutex
	responses map[string]string
	calls     map[string]int
	forms     []url.Values
}

func newFakeGateway(t *testing.T, responses map[string]string) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		t:         t,
		pub:       &testRSAKey(t, 0).PublicKey,
		responses: responses,
		calls:     make(map[string]int),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) URL() string { return g.srv.URL }

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.t.Errorf("method = %s; want POST", r.Method)
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		g.t.Errorf("Content-Type = %q", ct)
	}
	if err := r.ParseForm(); err != nil {
		g.t.Errorf("parse form: %v", err)
	}

	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	if !testVerifyRSA2(g.pub, Canonicalize(params), params["sign"]) {
		g.t.Errorf("request signature does not verify for %q", Canonicalize(params))
	}

	method := params["method"]
	g.mu.Lock()
	g.calls[method]++
	g.forms = append(g.forms, r.PostForm)
	body, ok := g.responses[method]
	g.mu.Unlock()

	if !ok {
		http.Error(w, "unexpected method "+method, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html;charset=GBK")
	_, _ = w.Write(gbk(g.t, body))
}

func (g *fakeGateway) callCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

func (g *fakeGateway) lastForm() url.Values {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.forms) == 0 {
		return nil
	}
	return g.forms[len(g.forms)-1]
}

func testVerifyRSA2(pub *rsa.PublicKey, content, sig string) bool {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	h := sha256.Sum256([]byte(content))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], raw) == nil
}
