package publishers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/trendwatch/pkg/httpclient"
)

var categoryIcons = map[string]string{
	"economy":     "📈",
	"geopolitics": "🌍",
	"markets":     "💰",
}

// whatsAppPublisher sends one WaSenderAPI message per recipient.
type whatsAppPublisher struct {
	id        string
	typ       string
	apiURL    string
	apiKey    string
	dashboard string
	loc       *time.Location
	client    httpclient.Client
	log       Logger
}

func newWhatsAppPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.WhatsApp == nil {
		return nil, fmt.Errorf("publisher %q missing whatsapp configuration", cfg.ID)
	}
	log = ensureLogger(log)
	wc := cfg.WhatsApp

	loc, err := time.LoadLocation(wc.Timezone)
	if err != nil {
		log.WarnObj("unknown timezone, using UTC", "publisher_whatsapp_timezone", map[string]any{
			"publisher_id": cfg.ID,
			"timezone":     wc.Timezone,
			"error":        err,
		})
		loc = time.UTC
	}
	timeout := time.Duration(wc.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = whatsAppDefaultTimeoutSeconds * time.Second
	}

	return &whatsAppPublisher{
		id:        cfg.ID,
		typ:       cfg.Type,
		apiURL:    wc.APIURL,
		apiKey:    wc.APIKey,
		dashboard: wc.DashboardURL,
		loc:       loc,
		client:    httpclient.NewRestyClient(timeout),
		log:       log,
	}, nil
}

func (p *whatsAppPublisher) ID() string   { return p.id }
func (p *whatsAppPublisher) Type() string { return p.typ }

type sendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Publish messages every recipient. Events without recipients are a no-op.
// A failed recipient does not stop the others; all failures are returned joined.
func (p *whatsAppPublisher) Publish(ctx context.Context, evt Event) error {
	if len(evt.Recipients) == 0 {
		return nil
	}
	text := FormatAlert(evt, p.dashboard, p.loc)
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}

	var errs []error
	sent := 0
	for _, r := range evt.Recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		resp, err := p.client.Do(ctx, "POST", p.apiURL, headers, sendMessageRequest{To: r.Phone, Text: text})
		if err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", r.Phone, err))
			continue
		}
		if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
			errs = append(errs, fmt.Errorf("send to %s: status %d", r.Phone, resp.StatusCode()))
			continue
		}
		sent++
	}

	p.log.InfoObj("whatsapp alerts sent", "publisher_whatsapp_delivery", map[string]any{
		"publisher_id": p.id,
		"event_id":     evt.ID,
		"sent":         sent,
		"failed":       len(evt.Recipients) - sent,
	})
	if len(errs) > 0 {
		return fmt.Errorf("whatsapp publisher %s: %w", p.id, errors.Join(errs...))
	}
	return nil
}

// FormatAlert renders the WhatsApp message body for an event.
func FormatAlert(evt Event, dashboard string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	category := "economy"
	if len(evt.Categories) > 0 {
		category = evt.Categories[0]
	}
	icon, ok := categoryIcons[strings.ToLower(category)]
	if !ok {
		icon = categoryIcons["economy"]
	}
	impact := "IMPACTO NORMAL"
	if evt.Impact == "high" {
		impact = "ALTO IMPACTO"
	}
	when := evt.PublishedAt
	if when.IsZero() {
		when = evt.DetectedAt
	}

	var b strings.Builder
	b.WriteString("🚨 GEOECO NEWS\n\n")
	fmt.Fprintf(&b, "%s %s | %s\n", icon, strings.ToUpper(category), impact)
	b.WriteString(strings.ToUpper(evt.Title))
	b.WriteString("\n\n")
	if evt.Summary != "" {
		fmt.Fprintf(&b, "💬 %s\n\n", evt.Summary)
	}
	fmt.Fprintf(&b, "🔗 %s\n", evt.URL)
	fmt.Fprintf(&b, "⏰ %s\n\n", when.In(loc).Format("02/01/2006 15:04"))
	b.WriteString("---\n")
	fmt.Fprintf(&b, "⚙️ Configurar alertas: https://%s/settings", dashboard)
	return b.String()
}
