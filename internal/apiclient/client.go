// Package apiclient wraps the what-if backend's REST API. All responses pass
// through the camelCase boundary in package casing; all requests are sent
// snake_case.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"whatif-planner/internal/casing"
	"whatif-planner/internal/logger"
	"whatif-planner/internal/session"
	"whatif-planner/internal/telemetry"
)

const (
	HeaderHousehold = "X-Household-ID"
	HeaderRequestID = "X-Request-ID"

	defaultTimeout = 15 * time.Second
)

// Doer is satisfied by *fasthttp.Client and *fasthttp.HostClient.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

type Options struct {
	BaseURL     string
	Prefix      string
	RefreshPath string
	LoginPath   string
	Timeout     time.Duration
	RateLimit   float64
	Burst       int
	HTTP        Doer
	Logger      *zap.Logger
}

type Client struct {
	opts    Options
	http    Doer
	session *session.Session
	limiter *rate.Limiter
	log     *zap.Logger
}

// APIError is returned for every non-2xx response. The body is kept for
// callers that want to inspect it; the message never includes it.
type APIError struct {
	Status     int
	StatusText string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d %s", e.Status, e.StatusText)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func New(sess *session.Session, opts Options) *Client {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.RefreshPath == "" {
		opts.RefreshPath = "/api/auth/token/refresh/"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/api/auth/token/"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	c := &Client{
		opts:    opts,
		http:    opts.HTTP,
		session: sess,
		log:     logger.OrNop(opts.Logger),
	}
	if c.http == nil {
		c.http = &fasthttp.Client{
			Name:                "whatif-planner",
			MaxIdleConnDuration: 90 * time.Second,
		}
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

func (c *Client) Session() *session.Session { return c.session }

// Do issues method on the API-prefixed path. body may be nil; out may be nil
// to discard the response.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := casing.Encode(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}
	return c.do(ctx, method, c.opts.Prefix+path, payload, out, false)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any, isRetry bool) error {
	status, respBody, err := c.send(ctx, method, path, payload, true)
	if err != nil {
		c.logFailure(method, path, 0, err)
		return err
	}

	if status == fasthttp.StatusUnauthorized && !isRetry && c.session.RefreshToken() != "" {
		rerr := c.refresh(ctx)
		if rerr == nil {
			return c.do(ctx, method, path, payload, out, true)
		}
		c.log.Warn("token refresh failed", zap.String("path", path), zap.Error(rerr))
	}

	if status < 200 || status >= 300 {
		apiErr := &APIError{Status: status, StatusText: fasthttp.StatusMessage(status), Body: respBody}
		c.logFailure(method, path, status, apiErr)
		return apiErr
	}

	if err := casing.Decode(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// refresh exchanges the refresh token for a new access token.
func (c *Client) refresh(ctx context.Context) error {
	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		return session.ErrNoRefreshToken
	}
	payload, err := casing.Encode(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return err
	}
	status, body, err := c.send(ctx, fasthttp.MethodPost, c.opts.RefreshPath, payload, false)
	if err != nil {
		telemetry.RecordRefresh(false)
		return err
	}
	if status < 200 || status >= 300 {
		telemetry.RecordRefresh(false)
		return &APIError{Status: status, StatusText: fasthttp.StatusMessage(status), Body: body}
	}
	var rr refreshResponse
	if err := casing.Decode(body, &rr); err != nil {
		telemetry.RecordRefresh(false)
		return err
	}
	if strings.TrimSpace(rr.Access) == "" {
		telemetry.RecordRefresh(false)
		return errors.New("refresh response carried no access token")
	}
	telemetry.RecordRefresh(true)
	if err := c.session.SetAccess(rr.Access); err != nil {
		c.log.Warn("persist refreshed token failed", zap.Error(err))
	}
	return nil
}

// send performs one HTTP exchange against BaseURL+path.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, authed bool) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}
	timeout, err := c.timeout(ctx)
	if err != nil {
		return 0, nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	requestID := uuid.NewString()
	req.SetRequestURI(c.opts.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}
	if authed {
		if tok := c.session.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		if hh := c.session.HouseholdID(); hh != "" {
			req.Header.Set(HeaderHousehold, hh)
		}
	}

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		telemetry.RecordRequest(method, 0)
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	telemetry.RecordRequest(method, status)
	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("request_id", requestID),
	)
	return status, append([]byte(nil), resp.Body()...), nil
}

func (c *Client) timeout(ctx context.Context) (time.Duration, error) {
	timeout := c.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return 0, context.DeadlineExceeded
		}
		if left < timeout {
			timeout = left
		}
	}
	return timeout, nil
}

func (c *Client) logFailure(method, path string, status int, err error) {
	p := c.session.Presence()
	c.log.Warn("api request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Bool("has_token", p.HasToken),
		zap.Bool("has_refresh_token", p.HasRefreshToken),
		zap.Bool("has_household_id", p.HasHouseholdID),
		zap.Error(err),
	)
}
