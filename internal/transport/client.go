// Package transport is the HTTP client of the route optimization service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"aicaptain/internal/metrics"
	"aicaptain/internal/session"
)

// DefaultTimeout bounds every call. The optimizer may run a long search, so
// this is far above what an interactive request needs.
const DefaultTimeout = 60 * time.Second

const maxErrorBody = 64 << 10

// RequestInterceptor may mutate an outgoing request. Returning an error
// aborts the call before it reaches the network.
type RequestInterceptor func(*http.Request) error

// ResponseInterceptor observes every response before status handling.
type ResponseInterceptor func(*http.Response)

// UnauthorizedFunc is the redirect-to-login signal. It fires once per
// cleared credential, never for the same token twice.
type UnauthorizedFunc func(ctx context.Context)

// Client talks to the optimization service. It never retries.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	creds          session.Credentials
	onUnauthorized UnauthorizedFunc
	reqHooks       []RequestInterceptor
	respHooks      []ResponseInterceptor
	log            *zap.Logger
	tracer         trace.Tracer

	// serializes credential invalidation with its signal
	authMu sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

func WithUnauthorizedHandler(fn UnauthorizedFunc) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func WithRequestInterceptor(fn RequestInterceptor) Option {
	return func(c *Client) { c.reqHooks = append(c.reqHooks, fn) }
}

func WithResponseInterceptor(fn ResponseInterceptor) Option {
	return func(c *Client) { c.respHooks = append(c.respHooks, fn) }
}

// New creates a client for baseURL (e.g. http://localhost:8000/api/v1).
// creds may be nil, in which case calls are unauthenticated.
func New(baseURL string, creds session.Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		creds:      creds,
		log:        zap.NewNop(),
		tracer:     otel.Tracer("aicaptain/transport"),
	}
	for _, o := range opts {
		o(c)
	}
	// built-in interceptors run before user supplied ones
	c.reqHooks = append([]RequestInterceptor{c.injectBearer}, c.reqHooks...)
	return c
}

func (c *Client) injectBearer(r *http.Request) error {
	if c.creds == nil {
		return nil
	}
	tok, err := c.creds.Token(r.Context())
	if err != nil {
		// missing storage is treated like a missing token; the server decides
		c.log.Warn("credential read failed", zap.Error(err))
		return nil
	}
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return nil
}

// handleUnauthorized clears the credential the request carried. Only the
// caller that actually clears it emits the signal.
func (c *Client) handleUnauthorized(ctx context.Context, resp *http.Response) {
	if c.creds == nil {
		return
	}
	sent := strings.TrimSpace(strings.TrimPrefix(resp.Request.Header.Get("Authorization"), "Bearer "))
	if sent == "" {
		return
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()
	cleared, err := c.creds.Invalidate(ctx, sent)
	if err != nil {
		c.log.Error("credential clear failed", zap.Error(err))
		return
	}
	if !cleared {
		return
	}
	metrics.SessionInvalidations.Inc()
	c.log.Warn("session invalidated after unauthorized response", zap.String("path", resp.Request.URL.Path))
	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}
}

// do performs one call. Any failure is returned as *model.APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.path", path))

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return NormalizeError(fmt.Errorf("marshal %s request: %w", path, err))
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return NormalizeError(fmt.Errorf("create %s request: %w", path, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, hook := range c.reqHooks {
		if err := hook(req); err != nil {
			return NormalizeError(err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(path, "0").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "no response")
		return NormalizeError(unwrapURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.UpstreamRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(ctx, resp)
	}
	for _, hook := range c.respHooks {
		hook(resp)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return NormalizeError(&StatusError{Status: resp.StatusCode, Body: payload})
	}
	if out == nil {
		return nil
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return NormalizeError(fmt.Errorf("read %s response: %w", path, err))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		span.SetStatus(codes.Error, "decode")
		return NormalizeError(&DecodeError{Status: resp.StatusCode, Body: truncate(payload), Err: err})
	}
	return nil
}

// unwrapURLError drops the "Post \"http://...\":" prefix net/http adds so
// the displayed message names the cause.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return fmt.Errorf("timeout exceeded: %w", ue.Err)
		}
		return ue.Err
	}
	return err
}

func truncate(b []byte) []byte {
	if len(b) > maxErrorBody {
		return b[:maxErrorBody]
	}
	return b
}
