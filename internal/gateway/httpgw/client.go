// Package httpgw implements gateway.Gateway against the couplegram server's
// REST API.
package httpgw

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/couplegram/couplegram/internal/gateway"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxElapsed = 10 * time.Second
	defaultRate       = 20
	defaultBurst      = 10
	maxErrorBody      = 4 << 10
)

// Client talks to the couplegram server. It holds the bearer token of the
// session it signed in with; Clients are safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
	log        *zap.Logger

	mu        sync.RWMutex
	token     string
	sessionID string
}

var _ gateway.Gateway = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit sets the client-side request throttle.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithMaxElapsed bounds the time spent retrying an idempotent request.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// WithToken resumes a previously stored session.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New constructs a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(defaultRate, defaultBurst),
		maxElapsed: defaultMaxElapsed,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTLSClient returns an HTTP client trusting the PEM encoded CA
// certificates in caFile in addition to the system pool.
func NewTLSClient(caFile string) (*http.Client, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", caFile)
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: tr, Timeout: defaultTimeout}, nil
}

// Token returns the bearer token of the current session, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token, c.sessionID = token, ""
	c.mu.Unlock()
}

func (c *Client) adopt(token, sessionID string) {
	c.mu.Lock()
	c.token, c.sessionID = token, sessionID
	c.mu.Unlock()
}

// do sends a JSON request. GET, PUT and DELETE are retried on transient
// failures; POST and PATCH are sent once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}
	newReq := func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	if method == http.MethodPost || method == http.MethodPatch {
		req, err := newReq()
		if err != nil {
			return err
		}
		return c.send(req, out)
	}

	attempt := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		err = c.send(req, out)
		if err != nil && !gateway.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Debug("retrying request", zap.String("method", method), zap.String("path", path),
			zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(c.backOff(), ctx), notify)
}

func (c *Client) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.maxElapsed
	return b
}

// send performs one request and decodes a 2xx body into out.
func (c *Client) send(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w: %v", req.Method, req.URL.Path, gateway.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: %w: %s", req.Method, req.URL.Path, kindOf(resp.StatusCode), strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// kindOf maps a response status to a gateway error kind.
func kindOf(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusForbidden,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType:
		return gateway.ErrInvalid
	case status == http.StatusUnauthorized:
		return gateway.ErrUnauthorized
	case status == http.StatusNotFound:
		return gateway.ErrNotFound
	case status == http.StatusConflict:
		return gateway.ErrConflict
	case status == http.StatusTooManyRequests, status >= 500:
		return gateway.ErrTransient
	}
	return errors.New(http.StatusText(status))
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func escape(id string) string {
	return url.PathEscape(id)
}
