package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// userAgent is sent with every API request.
const userAgent = "taskpilot/1.0"

// StatusError is a non-2xx API response. Retry classification reads
// HTTPStatus: 408, 425, 429 and 5xx are transient, everything else permanent.
type StatusError struct {
	Service     string
	StatusCode  int
	Message     string
	RateLimited bool
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limit exceeded (HTTP %d): %s", e.Service, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, msg)
}

// HTTPStatus reports the status used for retry classification. An exhausted
// rate limit counts as 429 whatever code the API used.
func (e *StatusError) HTTPStatus() int {
	if e.RateLimited {
		return http.StatusTooManyRequests
	}
	return e.StatusCode
}

// apiClient performs authenticated JSON GETs against one API.
type apiClient struct {
	service string
	baseURL string
	http    *http.Client
	headers map[string]string
	query   url.Values // added to every request, e.g. API keys
}

// getJSON requests baseURL+path with query and decodes the JSON body into out.
func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := strings.TrimRight(c.baseURL, "/") + path
	q := url.Values{}
	for k, vs := range c.query {
		q[k] = append([]string(nil), vs...)
	}
	for k, vs := range query {
		q[k] = append(q[k], vs...)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Service:     c.service,
			StatusCode:  resp.StatusCode,
			Message:     errorMessage(body),
			RateLimited: rateLimited(resp),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.service, err)
	}
	return nil
}

// rateLimited reports whether resp signals an exhausted quota.
func rateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
