package alipayauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// newDefaultHTTPClient returns a new http.Client with a default timeout of 10 seconds.
func newDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// maskValues renders form values for logging with sensitive entries masked.
// Keys are sorted for deterministic output.
func maskValues(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, key := range keys {
		for _, v := range values[key] {
			parts = append(parts, key+"="+maskSensitive(key, v))
		}
	}
	return strings.Join(parts, "&")
}

// maskURL masks sensitive query parameter values in a URL for safe logging.
// If the URL cannot be parsed, it is returned unchanged.
func maskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if len(q) == 0 {
		return rawURL
	}
	u.RawQuery = maskValues(q)
	return u.String()
}

// maxResponseSize is the upper limit on gateway response bodies.
const maxResponseSize = 1 << 20 // 1 MB

// readBody reads the response body (up to maxResponseSize bytes) and closes it.
func readBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// doPostForm sends an HTTP POST request with form-encoded body and returns
// the raw response bytes without any charset conversion. Failures to reach
// the endpoint, read the body, or a non-2xx status yield an ErrKindTransport
// error.
func doPostForm(ctx context.Context, client *http.Client, endpoint string, values url.Values, logger Logger) ([]byte, error) {
	logger.Debug("HTTP request", "method", "POST", "url", endpoint, "form", maskValues(values))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, newAuthError(ErrKindTransport, "", fmt.Sprintf("POST %s: %v", endpoint, err), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, newAuthError(ErrKindTransport, "", fmt.Sprintf("POST %s: %v", endpoint, err), err)
	}

	logger.Debug("HTTP response", "method", "POST", "url", endpoint, "status", resp.StatusCode)

	body, err := readBody(resp)
	if err != nil {
		return nil, newAuthError(ErrKindTransport, "", fmt.Sprintf("HTTP %d, POST %s: read body: %v", resp.StatusCode, endpoint, err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return nil, newAuthError(ErrKindTransport, "", fmt.Sprintf("HTTP %d, POST %s: %s", resp.StatusCode, endpoint, preview), nil)
	}

	return body, nil
}
