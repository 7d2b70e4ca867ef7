package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/trendwatch/pkg/httpclient"
)

// httpPublisher posts the event JSON to a webhook.
type httpPublisher struct {
	id      string
	typ     string
	url     string
	method  string
	headers map[string]string
	client  httpclient.Client
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = httpDefaultTimeoutSeconds * time.Second
	}
	method := cfg.HTTP.Method
	if method == "" {
		method = httpDefaultMethod
	}

	return &httpPublisher{
		id:      cfg.ID,
		typ:     cfg.Type,
		url:     cfg.HTTP.URL,
		method:  method,
		headers: cfg.HTTP.Headers,
		client:  httpclient.NewRestyClient(timeout),
		log:     ensureLogger(log),
	}, nil
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return p.typ }

// Publish sends the event; any non-2xx answer is an error.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := p.client.Do(ctx, p.method, p.url, p.headers, evt)
	if err != nil {
		return fmt.Errorf("http publisher %s: %w", p.id, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("http publisher %s: status %d body: %s", p.id, resp.StatusCode(), body)
	}
	p.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": p.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}
