package alipayauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/simp-lee/alipayauth/internal/metrics"
)

// Alipay gateway and auth URL constants.
const (
	alipayGatewayProduction = "https://openapi.alipay.com/gateway.do"
	alipayGatewaySandbox    = "https://openapi-sandbox.dl.alipaydev.com/gateway.do"
	alipayAuthorizeURL      = "https://openauth.alipay.com/oauth2/publicAppAuthorize.htm"

	methodOAuthToken    = "alipay.system.oauth.token"
	methodUserInfoShare = "alipay.user.info.share"

	nodeOAuthToken    = "alipay_system_oauth_token_response"
	nodeUserInfoShare = "alipay_user_info_share_response"
	nodeError         = "error_response"

	timestampLayout = "2006-01-02 15:04:05"
	successCode     = "10000"
)

// Client calls the Alipay open-platform gateway on behalf of one application.
// Credentials are fixed at construction; a Client is safe for concurrent use.
type Client struct {
	appID        string
	signer       *Signer
	gateway      string
	authorizeURL string
	httpClient   *http.Client
	logger       Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewClient creates a gateway client for appID. The application's private
// key (WithPrivateKey or WithPrivateKeyFile) and the Alipay public key
// (WithAlipayPublicKey or WithAlipayPublicKeyFile) are both required.
// All failures are ErrKindConfiguration errors.
func NewClient(appID string, opts ...Option) (*Client, error) {
	if appID == "" {
		return nil, newAuthError(ErrKindConfiguration, "", "appID must not be empty", nil)
	}

	cfg := newClientConfig(opts...)
	if err := cfg.validateKeySources(); err != nil {
		return nil, err
	}
	if !cfg.privateKey.isSet() {
		return nil, newAuthError(ErrKindConfiguration, "", "private key must be provided", nil)
	}
	if !cfg.publicKey.isSet() {
		return nil, newAuthError(ErrKindConfiguration, "", "alipay public key must be provided", nil)
	}

	kr, err := newKeyring(cfg.privateKey, cfg.publicKey, cfg.keyCacheTTL)
	if err != nil {
		return nil, asConfigError(err)
	}

	gateway := cfg.gateway
	if gateway == "" {
		gateway = alipayGatewayProduction
		if cfg.sandbox {
			gateway = alipayGatewaySandbox
		}
	}

	var m *metrics.Metrics
	if cfg.registerer != nil {
		m, err = metrics.New(cfg.registerer)
		if err != nil {
			return nil, newAuthError(ErrKindConfiguration, "", "register metrics: "+err.Error(), err)
		}
	}

	return &Client{
		appID:        appID,
		signer:       &Signer{keys: kr},
		gateway:      gateway,
		authorizeURL: cfg.authorizeURL,
		httpClient:   cfg.httpClient,
		logger:       cfg.logger,
		metrics:      m,
		now:          cfg.now,
	}, nil
}

// AppID returns the application identifier.
func (c *Client) AppID() string {
	return c.appID
}

// Signer returns the signer holding the client's key pair.
func (c *Client) Signer() *Signer {
	return c.signer
}

// AuthURL builds the consent URL the user is redirected to. callbackURL is
// query-escaped into redirect_uri.
func (c *Client) AuthURL(scope, state, callbackURL string) string {
	u, err := url.Parse(c.authorizeURL)
	if err != nil {
		u = &url.URL{Path: c.authorizeURL}
	}
	q := u.Query()
	q.Set("app_id", c.appID)
	q.Set("scope", scope)
	q.Set("state", state)
	q.Set("redirect_uri", callbackURL)
	u.RawQuery = q.Encode()
	return u.String()
}

// ExchangeToken exchanges an authorization code for an access token.
func (c *Client) ExchangeToken(ctx context.Context, code string) (*Token, error) {
	data, err := c.call(ctx, methodOAuthToken, map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	}, nodeOAuthToken)
	if err != nil {
		return nil, err
	}
	return c.parseTokenResponse(data)
}

// FetchUserInfo retrieves the raw user-info payload for accessToken. The
// payload can be normalized with ParseProfile.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	return c.call(ctx, methodUserInfoShare, map[string]string{
		"auth_token": accessToken,
	}, nodeUserInfoShare)
}

// buildCommonParams builds the system parameters shared by every gateway call.
func (c *Client) buildCommonParams(method string) map[string]string {
	return map[string]string{
		"app_id":    c.appID,
		"method":    method,
		"format":    "JSON",
		"charset":   gatewayCharset,
		"sign_type": "RSA2",
		"timestamp": c.now().Format(timestampLayout),
		"version":   "1.0",
	}
}

// buildRequestParams merges the common and business parameters, signs them
// and returns the form to post.
func (c *Client) buildRequestParams(method string, bizParams map[string]string) (url.Values, error) {
	merged := c.buildCommonParams(method)
	for k, v := range bizParams {
		merged[k] = v
	}
	delete(merged, "sign")

	sign, err := c.signer.Sign(merged)
	if err != nil {
		return nil, err
	}
	merged["sign"] = sign

	values := make(url.Values, len(merged))
	for k, v := range merged {
		values.Set(k, v)
	}
	return values, nil
}

// call performs one gateway round trip and returns the named success node,
// or an empty map when the node is absent.
func (c *Client) call(ctx context.Context, method string, bizParams map[string]string, nodeName string) (map[string]any, error) {
	values, err := c.buildRequestParams(method, bizParams)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := c.roundTrip(ctx, values, nodeName)
	c.metrics.ObserveGateway(method, gatewayOutcome(err), time.Since(start))
	if err != nil {
		c.logger.Warn("alipay gateway call failed", "provider", providerName, "method", method, "error", err)
		return nil, err
	}
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, values url.Values, nodeName string) (map[string]any, error) {
	body, err := doPostForm(ctx, c.httpClient, c.gateway, values, c.logger)
	if err != nil {
		return nil, err
	}

	decoded, err := decodeGBK(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("alipay API response",
		"provider", providerName,
		"method", values.Get("method"),
		"body_length", len(decoded),
	)

	var full map[string]any
	dec := json.NewDecoder(bytes.NewReader(decoded))
	dec.UseNumber()
	if err := dec.Decode(&full); err != nil {
		return nil, newAuthError(ErrKindResponseFormat, "", fmt.Sprintf("parse response: %v", err), err)
	}

	if raw, ok := full[nodeError]; ok && raw != nil {
		return nil, errorResponse(raw)
	}

	nodeRaw, ok := full[nodeName]
	if !ok || nodeRaw == nil {
		return map[string]any{}, nil
	}
	node, ok := nodeRaw.(map[string]any)
	if !ok {
		return nil, newAuthError(ErrKindResponseFormat, "", "response node is not an object: "+nodeName, nil)
	}

	// Business failures can also arrive inside the named node.
	if code := stringField(node, "code"); code != "" && code != successCode {
		msg := stringField(node, "msg")
		if subMsg := stringField(node, "sub_msg"); subMsg != "" {
			msg = subMsg
		}
		if subCode := stringField(node, "sub_code"); subCode != "" {
			code = subCode
		}
		return nil, newAuthError(ErrKindGateway, code, msg, nil)
	}

	return node, nil
}

// errorResponse converts an "error_response" payload to a gateway error
// whose message is the embedded msg.
func errorResponse(raw any) error {
	node, _ := raw.(map[string]any)
	msg := stringField(node, "msg")
	if msg == "" {
		msg = stringField(node, "sub_msg")
	}
	code := stringField(node, "sub_code")
	if code == "" {
		code = stringField(node, "code")
	}
	return newAuthError(ErrKindGateway, code, msg, nil)
}

// parseTokenResponse maps the token node to a Token.
func (c *Client) parseTokenResponse(data map[string]any) (*Token, error) {
	expiresIn, err := intField(data, "expires_in")
	if err != nil {
		return nil, err
	}
	reExpiresIn, err := intField(data, "re_expires_in")
	if err != nil {
		return nil, err
	}

	raw := make(map[string]any, len(data))
	for k, v := range data {
		raw[k] = v
	}

	token := &Token{
		AccessToken:  stringField(data, "access_token"),
		RefreshToken: stringField(data, "refresh_token"),
		UserID:       stringField(data, "user_id"),
		OpenID:       stringField(data, "open_id"),
		AlipayUserID: stringField(data, "alipay_user_id"),
		ExpiresIn:    expiresIn,
		ReExpiresIn:  reExpiresIn,
		Raw:          raw,
	}
	if expiresIn > 0 {
		token.ExpiresAt = c.now().Add(time.Duration(expiresIn) * time.Second)
	}

	c.logger.Debug("alipay token exchanged",
		"provider", providerName,
		"user_id", token.UserID,
		"expires_in", token.ExpiresIn,
	)

	return token, nil
}

func gatewayOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if ae, ok := err.(*AuthError); ok {
		return string(ae.Kind)
	}
	return "error"
}

// stringField returns m[key] as a string. Numbers are rendered in their
// original decimal form; other types yield "".
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// intField returns m[key] as an int. Alipay sends some counters as strings.
func intField(m map[string]any, key string) (int, error) {
	var s string
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case string:
		if v == "" {
			return 0, nil
		}
		s = v
	case json.Number:
		s = v.String()
	case float64:
		return int(v), nil
	default:
		return 0, newAuthError(ErrKindResponseFormat, "", fmt.Sprintf("invalid token response: unsupported %s type %T", key, v), nil)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, newAuthError(ErrKindResponseFormat, "", fmt.Sprintf("invalid token response: %s is not a valid integer: %q", key, s), err)
	}
	return n, nil
}
