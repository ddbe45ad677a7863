// Package backend talks to the hosted backend-as-a-service: its auth API,
// its row API for profiles and the waitlist, and the admin endpoints the
// account-deletion function needs.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rigshare/internal/auth"
)

// Client holds the connection settings shared by every visitor.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	http       *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for every call.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithServiceKey sets the service-role key used by admin calls.
func WithServiceKey(key string) Option {
	return func(c *Client) {
		c.serviceKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a Client for the backend at baseURL.
func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the underlying HTTP client so other callers can share its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	bearer  string
	apiKey  string
	headers map[string]string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", req.method, req.path, err)
	}
	apiKey := req.apiKey
	if apiKey == "" {
		apiKey = c.anonKey
	}
	httpReq.Header.Set("apikey", apiKey)
	httpReq.Header.Set("X-Client-Info", "rigshare-web")
	bearer := req.bearer
	if bearer == "" {
		bearer = apiKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", req.method, req.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if rawOut, ok := out.(*json.RawMessage); ok {
		*rawOut = append((*rawOut)[:0], raw...)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}

// apiError covers the error shapes of the auth API and the row API.
type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
}

func decodeError(status int, raw []byte) error {
	var payload apiError
	_ = json.Unmarshal(raw, &payload)

	message := firstNonEmpty(payload.ErrorDescription, payload.Msg, payload.Message, payload.Error)
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	code := payload.ErrorCode
	if s, ok := payload.Code.(string); ok && code == "" {
		code = s
	}
	if code == "" && payload.Error != "" && payload.Error != message {
		code = payload.Error
	}
	return &auth.Error{Status: status, Code: code, Message: message}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
