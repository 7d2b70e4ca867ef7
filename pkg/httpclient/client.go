package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "trendwatch/1.0 (+https://github.com/Adda-Baaj/trendwatch)"

// Response is the subset of an HTTP response used by callers.
type Response interface {
	StatusCode() int
	Body() []byte
}

// Client performs HTTP requests on behalf of fetchers, scrapers and publishers.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	Do(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error)
}

type restyClient struct {
	rc *resty.Client
}

// NewRestyClient returns a Client backed by resty with the given timeout.
func NewRestyClient(timeout time.Duration) Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("User-Agent", defaultUserAgent)
	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() == 429 || r.StatusCode() >= 500
	})
	return &restyClient{rc: rc}
}

// Get issues a GET request.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return c.Do(ctx, resty.MethodGet, url, headers, nil)
}

// Do issues a request with the given method. A non-nil body is sent as JSON
// unless it is a []byte or string.
func (c *restyClient) Do(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req := c.rc.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		switch body.(type) {
		case []byte, string:
		default:
			req.SetHeader("Content-Type", "application/json")
		}
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}
