package publishers

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/logger"
)

// Logger is the structured logger publishers write to.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger { return logger.Ensure(log) }

// Recipient is one subscriber an alert is addressed to.
type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Event is the alert payload handed to every publisher.
type Event struct {
	ID          string      `json:"id"`
	ProviderID  string      `json:"provider_id"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Summary     string      `json:"summary,omitempty"`
	Categories  []string    `json:"categories"`
	Impact      string      `json:"impact"`
	Sources     int         `json:"sources"`
	Score       int         `json:"score"`
	PublishedAt time.Time   `json:"published_at"`
	DetectedAt  time.Time   `json:"detected_at"`
	Recipients  []Recipient `json:"recipients,omitempty"`
}

// Publisher delivers alert events to one sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// CloseAll releases publishers that hold connections.
func CloseAll(pubs []Publisher) error {
	var errs []error
	for _, p := range pubs {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// eventAttributes are the message attributes shared by queue transports.
// Empty values are omitted; SQS and SNS reject them.
func eventAttributes(evt Event) map[string]string {
	attrs := map[string]string{
		"event_id":    evt.ID,
		"provider_id": evt.ProviderID,
		"impact":      evt.Impact,
	}
	if len(evt.Categories) > 0 {
		attrs["categories"] = strings.Join(evt.Categories, ",")
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return attrs
}
