package alipayauth

import "net/http"

// ResultKind is the terminal state of one Authenticate call.
type ResultKind string

const (
	// ResultRedirect means the user agent must be redirected to RedirectURL.
	ResultRedirect ResultKind = "redirect"
	// ResultFail is a soft authentication failure; Info carries diagnostics.
	ResultFail ResultKind = "fail"
	// ResultError is a hard authentication error; Err is set.
	ResultError ResultKind = "error"
	// ResultSuccess means the verify callback produced User.
	ResultSuccess ResultKind = "success"
)

// Result is the outcome of an authentication attempt. Exactly one of the
// four kinds is produced per call.
type Result struct {
	Kind ResultKind
	// RedirectURL is set for ResultRedirect.
	RedirectURL string
	// StatusCode is 302 for redirects and 401 for failures.
	StatusCode int
	User       any
	Info       any
	Err        error
}

// Host is implemented by the web framework glue that turns a Result into
// a response or a session.
type Host interface {
	Success(user, info any)
	Fail(info any)
	Error(err error)
	Redirect(url string, status int)
}

// Dispatch invokes the Host hook matching r.Kind.
func (r Result) Dispatch(h Host) {
	switch r.Kind {
	case ResultRedirect:
		h.Redirect(r.RedirectURL, r.StatusCode)
	case ResultFail:
		h.Fail(r.Info)
	case ResultSuccess:
		h.Success(r.User, r.Info)
	default:
		h.Error(r.Err)
	}
}

func redirectResult(u string) Result {
	return Result{Kind: ResultRedirect, RedirectURL: u, StatusCode: http.StatusFound}
}

func failResult(info any) Result {
	return Result{Kind: ResultFail, StatusCode: http.StatusUnauthorized, Info: info}
}

func errorResult(err error) Result {
	return Result{Kind: ResultError, Err: err}
}

func successResult(user, info any) Result {
	return Result{Kind: ResultSuccess, User: user, Info: info}
}
