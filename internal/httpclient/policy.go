package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/julienstroheker/wsrelay/internal/logging"
)

// Policy represents a middleware that can modify requests and responses
type Policy interface {
	// Do executes the policy and calls the next policy in the chain
	Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error)
}

// PolicyFunc is a function adapter for Policy interface
type PolicyFunc func(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error)

// Do implements Policy interface
func (f PolicyFunc) Do(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	return f(req, next)
}

// ErrorPolicy wraps transport errors with the request URL
type ErrorPolicy struct{}

// NewErrorPolicy creates a new ErrorPolicy
func NewErrorPolicy() *ErrorPolicy {
	return &ErrorPolicy{}
}

// Do implements Policy interface
func (p *ErrorPolicy) Do(
	req *http.Request,
	next func(*http.Request) (*http.Response, error),
) (*http.Response, error) {
	resp, err := next(req)
	if err != nil {
		return resp, fmt.Errorf("request to %s failed: %w", req.URL.String(), err)
	}
	return resp, nil
}

// RetryPolicy retries requests that failed or returned a retryable status
type RetryPolicy struct {
	maxRetries       int
	retryDelay       time.Duration
	retryStatusCodes []int
	logger           *logging.Logger
}

// RetryOptions contains configuration for RetryPolicy
type RetryOptions struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int

	// RetryDelay is the initial delay between retries (default: 500ms)
	RetryDelay time.Duration

	// RetryStatusCodes defines which HTTP status codes trigger a retry.
	// Default: 429, 500, 502, 503 and 504. A relay that is not ready yet answers 503.
	RetryStatusCodes []int

	// Logger for debug logging (optional)
	Logger *logging.Logger
}

// NewRetryPolicy creates a new RetryPolicy
func NewRetryPolicy(opts *RetryOptions) *RetryPolicy {
	if opts == nil {
		opts = &RetryOptions{}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	retryStatusCodes := opts.RetryStatusCodes
	if len(retryStatusCodes) == 0 {
		retryStatusCodes = []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}

	return &RetryPolicy{
		maxRetries:       maxRetries,
		retryDelay:       retryDelay,
		retryStatusCodes: retryStatusCodes,
		logger:           opts.Logger,
	}
}

// Do implements Policy interface. It stops early when the request context is done.
func (p *RetryPolicy) Do(
	req *http.Request,
	next func(*http.Request) (*http.Response, error),
) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = next(req)
		if err == nil && !p.shouldRetry(resp) {
			return resp, nil
		}
		if attempt == p.maxRetries {
			break
		}

		// The response is about to be replaced, release its connection
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		p.logger.Debug("Retrying request",
			logging.Int("attempt", attempt+1),
			logging.Int("max_retries", p.maxRetries),
			logging.String("url", req.URL.String()))

		timer := time.NewTimer(p.retryDelay * time.Duration(1<<attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return resp, err
}

func (p *RetryPolicy) shouldRetry(resp *http.Response) bool {
	if resp == nil {
		return true
	}
	return slices.Contains(p.retryStatusCodes, resp.StatusCode)
}

// RequestIDPolicy adds a unique request ID to each request. The ops server
// echoes it back and logs it as client_request_id.
type RequestIDPolicy struct {
	headerName string
}

// NewRequestIDPolicy creates a new RequestIDPolicy
func NewRequestIDPolicy(headerName string) *RequestIDPolicy {
	if headerName == "" {
		headerName = "X-Client-Request-Id"
	}
	return &RequestIDPolicy{headerName: headerName}
}

// Do implements Policy interface
func (p *RequestIDPolicy) Do(
	req *http.Request,
	next func(*http.Request) (*http.Response, error),
) (*http.Response, error) {
	if req.Header.Get(p.headerName) == "" {
		req.Header.Set(p.headerName, uuid.New().String())
	}
	return next(req)
}

// UserAgentPolicy adds a User-Agent header to requests
type UserAgentPolicy struct {
	userAgent string
}

// NewUserAgentPolicy creates a new UserAgentPolicy
func NewUserAgentPolicy(userAgent string) *UserAgentPolicy {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &UserAgentPolicy{userAgent: userAgent}
}

// Do implements Policy interface
func (p *UserAgentPolicy) Do(
	req *http.Request,
	next func(*http.Request) (*http.Response, error),
) (*http.Response, error) {
	req.Header.Set("User-Agent", p.userAgent)
	return next(req)
}

// LoggingPolicy logs requests and responses at debug level
type LoggingPolicy struct {
	logger *logging.Logger
}

// NewLoggingPolicy creates a new LoggingPolicy
func NewLoggingPolicy(logger *logging.Logger) *LoggingPolicy {
	return &LoggingPolicy{logger: logger}
}

// Do implements Policy interface
func (p *LoggingPolicy) Do(
	req *http.Request,
	next func(*http.Request) (*http.Response, error),
) (*http.Response, error) {
	p.logger.Debug("HTTP request",
		logging.String("method", req.Method),
		logging.String("url", req.URL.String()),
		logging.String("request_id", req.Header.Get("X-Client-Request-Id")))

	start := time.Now()
	resp, err := next(req)
	duration := time.Since(start)

	if err != nil {
		p.logger.Debug("HTTP request failed",
			logging.String("url", req.URL.String()),
			logging.Error(err),
			logging.Duration("duration", duration))
		return resp, err
	}

	p.logger.Debug("HTTP response",
		logging.String("url", req.URL.String()),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", duration))
	return resp, nil
}
