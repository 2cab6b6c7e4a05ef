// Package alipayauth implements Alipay open-platform login for Go web
// applications.
//
// It exchanges an authorization code for an access token, optionally
// fetches the user's profile, and hands the result to an application
// supplied verify callback that decides whether the login succeeds. Gateway
// requests are signed with RSA2 (SHA256WithRSA) over a canonical query
// string, and responses are decoded from GBK before JSON parsing.
//
// # Quick Start
//
//	client, err := alipayauth.NewClient(appID,
//	    alipayauth.WithPrivateKeyFile("app_private_key.pem"),
//	    alipayauth.WithAlipayPublicKeyFile("alipay_public_key.pem"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	strategy, err := alipayauth.NewStrategy(client,
//	    func(ctx context.Context, accessToken, refreshToken string, p *alipayauth.Profile) (any, any, error) {
//	        return users.FindOrCreate(ctx, p.ID, p.DisplayName)
//	    },
//	    alipayauth.WithDefaultCallbackURL("https://example.com/auth/alipay/callback"),
//	)
//
// Both the login route and the callback route call the same strategy:
//
//	res := strategy.Authenticate(r)
//	switch res.Kind {
//	case alipayauth.ResultRedirect: // send the user to Alipay
//	case alipayauth.ResultSuccess:  // res.User is the application user
//	case alipayauth.ResultFail:     // soft failure, res.Info explains
//	case alipayauth.ResultError:    // res.Err is an *AuthError
//	}
//
// Hosts that prefer hook-style callbacks implement [Host] and call
// [Strategy.Run]; package httpauth provides one for net/http and chi.
//
// # Scope
//
// The default scope is "auth_user", which fetches the full profile. A scope
// of "auth_base" skips the user-info call and the profile carries only the
// user id from the token response.
//
// # Error Handling
//
// All errors are [*AuthError] values with a Kind. Sentinels such as
// [ErrGateway] and [ErrTransport] work with [errors.Is].
package alipayauth
