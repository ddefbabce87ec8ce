package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"assetcycle/internal/config"
	"assetcycle/internal/platform"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	googleAuthURL         = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL        = "https://oauth2.googleapis.com/token"
)

// Client talks to the Google Ads REST API for one customer account.
type Client struct {
	baseURL         string
	version         string
	customerID      string
	loginCustomerID string
	developerToken  string

	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
	now              func() time.Time
}

var _ platform.Client = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTokenSource overrides the OAuth2 refresh-token flow.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithClock overrides the clock used to compute query date ranges.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a client from the google_ads configuration section.
func New(cfg config.GoogleAds, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	baseDelay := defaultRetryBaseDelay
	if cfg.RetryBackoffMillis > 0 {
		baseDelay = time.Duration(cfg.RetryBackoffMillis) * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}
	client := &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		version:          strings.TrimSpace(cfg.APIVersion),
		customerID:       strings.ReplaceAll(strings.TrimSpace(cfg.CustomerID), "-", ""),
		loginCustomerID:  strings.ReplaceAll(strings.TrimSpace(cfg.LoginCustomerID), "-", ""),
		developerToken:   strings.TrimSpace(cfg.DeveloperToken),
		httpClient:       &http.Client{Timeout: timeout},
		tokens:           oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken}),
		limiter:          rate.NewLimiter(limit, 1),
		retryMaxAttempts: cfg.MaxRetries + 1,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Errors []struct {
				ErrorCode map[string]string `json:"errorCode"`
				Message   string            `json:"message"`
			} `json:"errors"`
		} `json:"details"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (c *Client) customerPath(suffix string) string {
	return fmt.Sprintf("%s/%s/customers/%s/%s", c.baseURL, c.version, c.customerID, suffix)
}

// post sends a JSON request with retries and decodes the response into out.
func (c *Client) post(ctx context.Context, op, endpoint string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return &platform.Error{Op: op, Message: "encode body", Err: err}
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := c.sendOnce(ctx, endpoint, encoded)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return &platform.Error{Op: op, Message: "decode response", Err: err}
			}
			return nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return &platform.Error{Op: op, Err: err}
		}
	}
	return classify(op, lastErr, attempts)
}

func (c *Client) sendOnce(ctx context.Context, endpoint string, encoded []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.developerToken)
	if c.loginCustomerID != "" {
		req.Header.Set("login-customer-id", c.loginCustomerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseStatusError(resp, body)
	}
	return body, nil
}

func parseStatusError(resp *http.Response, body []byte) *httpStatusError {
	statusErr := &httpStatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	statusErr.RetryAfter, _ = parseRetryAfter(resp.Header.Get("Retry-After"))

	var decoded apiErrorBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return statusErr
	}
	if decoded.Error.Message != "" {
		statusErr.Message = decoded.Error.Message
	}
	statusErr.Code = decoded.Error.Status
	for _, detail := range decoded.Error.Details {
		for _, failure := range detail.Errors {
			for _, value := range failure.ErrorCode {
				statusErr.Code = value
				if failure.Message != "" {
					statusErr.Message = failure.Message
				}
				return statusErr
			}
		}
	}
	return statusErr
}

func classify(op string, err error, attempts int) error {
	if err == nil {
		err = errors.New("unknown retry failure")
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		perr := &platform.Error{Op: op, StatusCode: statusErr.StatusCode, Code: statusErr.Code, Message: statusErr.Message}
		switch {
		case retryableStatus(statusErr.StatusCode):
			perr.Message = fmt.Sprintf("%s (after %d attempts)", statusErr.Message, attempts)
			perr.Err = platform.ErrTransient
		case statusErr.StatusCode == http.StatusNotFound:
			perr.Err = platform.ErrNotFound
		default:
			perr.Err = platform.ErrRejected
		}
		return perr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &platform.Error{Op: op, Err: err}
	}
	if isTimeout(err) {
		return &platform.Error{Op: op, Message: fmt.Sprintf("after %d attempts", attempts), Err: fmt.Errorf("%w: %w", platform.ErrTransient, err)}
	}
	return &platform.Error{Op: op, Err: err}
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if !retryableStatus(statusErr.StatusCode) {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			return c.capDelay(statusErr.RetryAfter), true
		}
		return c.backoffDelay(attempt), true
	}
	if isTimeout(err) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
