// Package upstream wraps marketplace and currency HTTP APIs behind a single
// capability. Callers classify outcomes from the Outcome struct instead of
// inspecting error types; the error return is transport-level only.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const DefaultTimeout = 25 * time.Second

// Request describes one upstream call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Outcome is the explicit result of an upstream call. OK is true only for
// 2xx responses. RetryAfter is the server's retry hint when it sent one.
type Outcome struct {
	OK         bool
	HTTPStatus int
	RetryAfter time.Duration
	ErrorBody  json.RawMessage
	ResultBody json.RawMessage
}

// Client performs one upstream call. A non-nil error means the call never
// produced an HTTP response (timeout, connection failure); any HTTP response,
// success or not, comes back as an Outcome with a nil error.
type Client interface {
	Call(ctx context.Context, req Request) (Outcome, error)
}

// HTTPClient is the production Client. Every call carries a fixed deadline.
type HTTPClient struct {
	http *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{http: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Call(ctx context.Context, req Request) (Outcome, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		target = target + "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Outcome{}, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		HTTPStatus: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.OK = true
		out.ResultBody = raw
		return out, nil
	}

	out.ErrorBody = normalizeErrorBody(raw, resp.StatusCode)
	return out, nil
}

// normalizeErrorBody keeps JSON error payloads as-is and wraps anything else
// so LastError is always a structured document.
func normalizeErrorBody(raw []byte, status int) json.RawMessage {
	if json.Valid(raw) && len(bytes.TrimSpace(raw)) > 0 {
		return raw
	}
	wrapped, _ := json.Marshal(map[string]any{
		"msg":    string(raw),
		"status": status,
	})
	return wrapped
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
