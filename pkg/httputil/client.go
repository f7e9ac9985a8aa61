package httputil

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/fundscope/pkg/config"
	"github.com/wonny/fundscope/pkg/logger"
)

// DefaultUserAgents rotated per request when none are configured
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// maxBodyBytes caps a single response (full NAV history pages are the largest)
const maxBodyBytes = 32 << 20

// Client performs single HTTP attempts and returns raw bodies.
// Retry, backoff and attempt logging live in internal/fetch.
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	userAgents []string
	pickUA     func(n int) int
}

// StatusError is returned for any non-2xx response
type StatusError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration // parsed from Retry-After when present
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth another attempt
func (e *StatusError) Retryable() bool {
	return IsRetryableError(e.StatusCode)
}

// New creates a new HTTP client from config
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(cfg *config.Config, log *logger.Logger) *Client {
	uas := cfg.Eastmoney.UserAgents
	if len(uas) == 0 {
		uas = DefaultUserAgents
	}

	// Backstop only; per-attempt deadlines come from the request context.
	timeout := 2 * cfg.Fetch.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Component("http"),
		userAgents: uas,
		pickUA:     rand.Intn,
	}
}

// NewWithHTTPClient wraps an existing http.Client (tests, custom transports)
func NewWithHTTPClient(hc *http.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: hc,
		logger:     log.Component("http"),
		userAgents: DefaultUserAgents,
		pickUA:     rand.Intn,
	}
}

// Get performs a GET request and returns the body
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.GetWithHeaders(ctx, url, nil)
}

// GetWithHeaders performs a GET request with extra headers (Referer etc.)
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgents[c.pickUA(len(c.userAgents))])
	req.Header.Set("Accept", "*/*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

// do executes exactly one request
func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	url := req.URL.String()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 본문은 버리고 커넥션만 재사용
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"url":         url,
		"status_code": resp.StatusCode,
		"bytes":       len(body),
		"duration":    time.Since(start).String(),
	}).Debug("HTTP request completed")

	return body, nil
}

// parseRetryAfter supports the delta-seconds form only
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsRetryableError checks if a status code should be retried
func IsRetryableError(statusCode int) bool {
	// Retry on 5xx server errors and 429 Too Many Requests
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
