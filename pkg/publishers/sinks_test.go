package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/streadway/amqp"
)

func sampleEvent() Event {
	return Event{
		ID:          "abc123",
		ProviderID:  "reuters",
		URL:         "https://www.reuters.com/juros",
		Title:       "Juros sobem",
		Summary:     "Copom eleva a Selic.",
		Categories:  []string{"economy", "markets"},
		Impact:      "high",
		Sources:     2,
		Score:       2,
		PublishedAt: time.Date(2026, 3, 10, 15, 4, 0, 0, time.UTC),
		DetectedAt:  time.Date(2026, 3, 10, 15, 10, 0, 0, time.UTC),
	}
}

func TestFormatAlert(t *testing.T) {
	got := FormatAlert(sampleEvent(), "alerts.example.com", time.UTC)
	want := "🚨 GEOECO NEWS\n\n" +
		"📈 ECONOMY | ALTO IMPACTO\n" +
		"JUROS SOBEM\n\n" +
		"💬 Copom eleva a Selic.\n\n" +
		"🔗 https://www.reuters.com/juros\n" +
		"⏰ 10/03/2026 15:04\n\n" +
		"---\n" +
		"⚙️ Configurar alertas: https://alerts.example.com/settings"
	if got != want {
		t.Fatalf("message mismatch\n got: %q\nwant: %q", got, want)
	}

	evt := sampleEvent()
	evt.Categories = []string{"geopolitics"}
	evt.Impact = "normal"
	evt.PublishedAt = time.Time{}
	got = FormatAlert(evt, "x", time.FixedZone("BRT", -3*3600))
	if !strings.Contains(got, "🌍 GEOPOLITICS | IMPACTO NORMAL") {
		t.Errorf("header missing in %q", got)
	}
	if !strings.Contains(got, "⏰ 10/03/2026 12:10") {
		t.Errorf("detected time fallback missing in %q", got)
	}
}

func TestWhatsAppPublisher(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []sendMessageRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()
		if req.To == "5511000000000" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := PublisherConfig{ID: "wa", Type: TypeWhatsApp, WhatsApp: &WhatsAppPublisherConfig{
		APIURL: srv.URL, APIKey: "secret", DashboardURL: "alerts.example.com", Timezone: "UTC", TimeoutSeconds: 2,
	}}
	pub, err := newWhatsAppPublisher(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("no recipients should be a no-op, got %v", err)
	}

	evt := sampleEvent()
	evt.Recipients = []Recipient{
		{Name: "Ana", Phone: "5511987654321"},
		{Name: "Bad", Phone: "5511000000000"},
		{Name: "Caio", Phone: "5521987654321"},
	}
	err = pub.Publish(context.Background(), evt)
	if err == nil || !strings.Contains(err.Error(), "5511000000000") {
		t.Fatalf("expected failure for bad recipient, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	if reqs[0].To != "5511987654321" || reqs[2].To != "5521987654321" {
		t.Errorf("recipients = %+v", reqs)
	}
	if reqs[0].Text != FormatAlert(evt, "alerts.example.com", time.UTC) {
		t.Errorf("text = %q", reqs[0].Text)
	}
}

func TestHTTPPublisher(t *testing.T) {
	var got Event
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Token")
		if r.URL.Path == "/reject" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad payload"))
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := sanitizePublisherConfig(PublisherConfig{ID: "hook", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{
		URL: srv.URL + "/alerts", Headers: map[string]string{"X-Token": "abc"},
	}})
	pub, err := newHTTPPublisher(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.ID != "abc123" || got.Impact != "high" || got.Sources != 2 || token != "abc" {
		t.Fatalf("received %+v token %q", got, token)
	}

	cfg.HTTP.URL = srv.URL + "/reject"
	pub, _ = newHTTPPublisher(context.Background(), cfg, nil)
	if err := pub.Publish(context.Background(), sampleEvent()); err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

type fakeSender struct {
	events []Event
	err    error
	closed bool
}

func (f *fakeSender) Send(_ context.Context, evt Event) error {
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestQueuePublisher(t *testing.T) {
	sender := &fakeSender{}
	pub := &queuePublisher{id: "q", typ: TypeQueue, provider: QueueProviderKafka, sender: sender, log: ensureLogger(nil)}

	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sender.events))
	}

	sender.err = errors.New("broker down")
	if err := pub.Publish(context.Background(), sampleEvent()); err == nil || !strings.Contains(err.Error(), "kafka") {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	if err := CloseAll([]Publisher{pub}); err != nil || !sender.closed {
		t.Fatalf("close: err=%v closed=%v", err, sender.closed)
	}
}

type fakeProducer struct {
	msgs   []*sarama.ProducerMessage
	closed bool
}

func (f *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	f.msgs = append(f.msgs, msg)
	return 0, int64(len(f.msgs)), nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSender(t *testing.T) {
	prod := &fakeProducer{}
	s := &kafkaSender{topic: "alerts", producer: prod, log: ensureLogger(nil)}
	if err := s.Send(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(prod.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(prod.msgs))
	}
	msg := prod.msgs[0]
	key, _ := msg.Key.Encode()
	if msg.Topic != "alerts" || string(key) != "abc123" {
		t.Errorf("topic/key = %s/%s", msg.Topic, key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	if headers["impact"] != "high" || headers["categories"] != "economy,markets" {
		t.Errorf("headers = %v", headers)
	}
	if err := s.Close(); err != nil || !prod.closed {
		t.Fatalf("close: %v", err)
	}
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	closed        bool
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQSender(t *testing.T) {
	ch := &fakeChannel{}
	s := &rabbitMQSender{exchange: "alerts", routingKey: "news.high", channel: ch, log: ensureLogger(nil)}
	if err := s.Send(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ch.exchange != "alerts" || ch.key != "news.high" {
		t.Errorf("exchange/key = %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.ContentType != "application/json" || ch.msg.MessageId != "abc123" || ch.msg.DeliveryMode != amqp.Persistent {
		t.Errorf("msg = %+v", ch.msg)
	}
	var evt Event
	if err := json.Unmarshal(ch.msg.Body, &evt); err != nil || evt.URL != sampleEvent().URL {
		t.Errorf("body = %s err=%v", ch.msg.Body, err)
	}
	if err := s.Close(); err != nil || !ch.closed {
		t.Fatalf("close: %v", err)
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Publisher(t *testing.T) {
	client := &fakeS3{}
	pub := &s3Publisher{id: "archive", typ: TypeS3, bucket: "alerts", prefix: "trendwatch", client: client, log: ensureLogger(nil)}
	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if aws.ToString(client.input.Bucket) != "alerts" {
		t.Errorf("bucket = %s", aws.ToString(client.input.Bucket))
	}
	if key := aws.ToString(client.input.Key); key != "trendwatch/2026/03/10/abc123.json" {
		t.Errorf("key = %s", key)
	}
	if !strings.Contains(string(client.body), `"provider_id":"reuters"`) {
		t.Errorf("body = %s", client.body)
	}
	if key := objectKey("", sampleEvent()); key != "2026/03/10/abc123.json" {
		t.Errorf("empty prefix key = %s", key)
	}
}

func TestEventAttributesOmitEmpty(t *testing.T) {
	attrs := eventAttributes(Event{ID: "x"})
	if len(attrs) != 1 || attrs["event_id"] != "x" {
		t.Fatalf("attrs = %v", attrs)
	}
	if got := sqsAttributes(sampleEvent()); aws.ToString(got["impact"].StringValue) != "high" {
		t.Fatalf("sqs attrs = %v", got)
	}
	if got := snsAttributes(sampleEvent()); len(got) != 4 {
		t.Fatalf("sns attrs = %v", got)
	}
}
