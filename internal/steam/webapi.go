// Package steam talks to Steam's Web API: it authenticates an account, keeps
// the resulting tokens fresh and exposes a generic call primitive used by the
// chat layer.
package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/scposter/internal/resilience"
)

// DefaultBaseURL is the public Web API endpoint.
const DefaultBaseURL = "https://api.steampowered.com"

const maxErrorBody = 512

// Request describes a single Web API method invocation.
type Request struct {
	Interface string
	Method    string
	Version   int
	// Post sends Params as a form body instead of the query string.
	Post   bool
	Params url.Values
	// Raw skips the {"response": ...} envelope.
	Raw bool
	// Idempotent requests are retried on transient failures.
	Idempotent bool
}

// Name returns the "Interface/Method/vN" path of the request.
func (r Request) Name() string {
	v := r.Version
	if v == 0 {
		v = 1
	}
	return fmt.Sprintf("%s/%s/v%d", r.Interface, r.Method, v)
}

// Get builds an idempotent GET request.
func Get(iface, method string, params url.Values) Request {
	return Request{Interface: iface, Method: method, Version: 1, Params: params, Idempotent: true}
}

// Post builds a POST request. It is not retried.
func Post(iface, method string, params url.Values) Request {
	return Request{Interface: iface, Method: method, Version: 1, Post: true, Params: params}
}

// Caller performs Web API requests.
type Caller interface {
	Call(ctx context.Context, req Request, out any) error
}

// Client is a Web API transport guarded by a circuit breaker and a retry policy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint (tests use httptest servers).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetry overrides the retry policy. The classification filters are kept.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = cfg.MaxAttempts
		c.retry.InitialInterval = cfg.InitialInterval
		c.retry.MaxInterval = cfg.MaxInterval
		c.retry.Multiplier = cfg.Multiplier
		c.retry.RandomFactor = cfg.RandomFactor
	}
}

// WithBreaker overrides the circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewClient creates a Web API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.retry.ShouldRetry = func(err error) bool { return Classify(err).Retryable() }
	c.retry.Immediate = func(err error) bool { return Classify(err).Disposition == ImmediateRetry }

	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "steam-webapi",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			IsFailure: func(err error) bool {
				return Classify(err).Domain == DomainTransport
			},
		})
	}
	return c
}

// Call performs req without credentials.
func (c *Client) Call(ctx context.Context, req Request, out any) error {
	return c.CallWithToken(ctx, req, "", out)
}

// CallWithToken performs req, adding access_token when non-empty, and decodes
// the response into out (which may be nil).
func (c *Client) CallWithToken(ctx context.Context, req Request, token string, out any) error {
	op := func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.do(ctx, req, token, out)
		})
	}

	if !req.Idempotent {
		return op(ctx)
	}
	return resilience.WithRetry(ctx, op, c.retry)
}

func (c *Client) do(ctx context.Context, req Request, token string, out any) error {
	httpReq, err := c.buildRequest(ctx, req, token)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", req.Name(), err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Steam API call",
		"method", req.Name(),
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if apiErr := responseError(req.Name(), resp); apiErr != nil {
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if req.Raw {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: %w: %w", req.Name(), ErrMalformedResponse, err)
		}
		return nil
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: %w: %w", req.Name(), ErrMalformedResponse, err)
	}
	if len(envelope.Response) == 0 {
		return fmt.Errorf("%s: %w: missing response object", req.Name(), ErrMalformedResponse)
	}
	if err := json.Unmarshal(envelope.Response, out); err != nil {
		return fmt.Errorf("%s: %w: %w", req.Name(), ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) buildRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	params := url.Values{}
	for k, v := range req.Params {
		params[k] = v
	}
	if token != "" {
		params.Set("access_token", token)
	}

	endpoint := c.baseURL + "/" + req.Name() + "/"
	if !req.Post {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return httpReq, nil
}

func responseError(method string, resp *http.Response) *APIError {
	result := ResultInvalid
	if h := resp.Header.Get("X-eresult"); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			result = EResult(n)
		}
	}

	statusOK := resp.StatusCode >= 200 && resp.StatusCode < 300
	if statusOK && (result == ResultInvalid || result == ResultOK) {
		return nil
	}

	apiErr := &APIError{
		Method:  method,
		Status:  resp.StatusCode,
		Result:  result,
		Message: resp.Header.Get("X-error_message"),
	}
	if apiErr.Message == "" && !statusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// Uint64 decodes 64-bit values that Steam encodes either as JSON numbers or strings.
type Uint64 uint64

func (u *Uint64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 %q: %w", s, err)
	}
	*u = Uint64(n)
	return nil
}

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(u), 10)), nil
}

// IsAPIResult reports whether err is an APIError carrying result.
func IsAPIResult(err error, result EResult) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Result == result
}
