package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/metrics"
)

const maxResponseBytes = 8 << 20

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("api base url must be an absolute http(s) url, got %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http:    &http.Client{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session binds the client to a token source. Every store and submitter gets
// its session injected; nothing reads credentials from ambient state.
func (c *Client) Session(tokens TokenSource) *Session {
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Session{client: c, tokens: tokens}
}

type Session struct {
	client *Client
	tokens TokenSource
}

func (s *Session) Tokens() TokenSource {
	return s.tokens
}

func (s *Session) Get(ctx context.Context, path string, out any) error {
	return s.call(ctx, http.MethodGet, path, nil, out)
}

func (s *Session) Post(ctx context.Context, path string, body any, out any) error {
	return s.call(ctx, http.MethodPost, path, body, out)
}

func (s *Session) Put(ctx context.Context, path string, body any, out any) error {
	return s.call(ctx, http.MethodPut, path, body, out)
}

func (s *Session) Delete(ctx context.Context, path string, out any) error {
	return s.call(ctx, http.MethodDelete, path, nil, out)
}

func (s *Session) call(ctx context.Context, method string, path string, body any, out any) error {
	raw, err := s.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return DecodeEnvelope(raw, out)
}

// Do sends one request and returns the raw 2xx body. Callers that need
// alternative envelope keys decode it themselves.
func (s *Session) Do(ctx context.Context, method string, path string, body any) ([]byte, error) {
	token := s.tokens.Token()
	if token == "" {
		return nil, fmt.Errorf("%w: no bearer token", domain.ErrAuthenticationExpired)
	}
	if exp, ok := TokenExpiry(token); ok && !s.client.now().Before(exp) {
		return nil, fmt.Errorf("%w: token expired at %s", domain.ErrAuthenticationExpired, exp.UTC().Format(time.RFC3339))
	}

	path = strings.TrimLeft(path, "/")
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.baseURL+"/"+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/json")
	}

	resource := resourceOf(path)
	startedAt := time.Now()
	resp, err := s.client.http.Do(req)
	elapsed := time.Since(startedAt)
	metrics.RemoteRequestDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(method, resource, "error").Inc()
		s.client.logger.Warn("remote request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, &RequestError{Method: method, Path: path, Cause: err}
	}
	defer resp.Body.Close()

	metrics.RemoteRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(resp.StatusCode)).Inc()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Cause: err}
	}

	s.client.logger.Debug("remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := extractMessage(raw)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

// resourceOf keeps metric labels bounded: "unit/12" and "unit" share a label.
func resourceOf(path string) string {
	if idx := strings.IndexAny(path, "/?"); idx > 0 {
		return path[:idx]
	}
	if path == "" {
		return "root"
	}
	return path
}
