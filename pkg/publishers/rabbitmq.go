package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// amqpChannel is the subset of *amqp.Channel used by the sender.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// rabbitMQSender implements queueSender for an AMQP exchange.
type rabbitMQSender struct {
	exchange   string
	routingKey string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel amqpChannel
	log     Logger
}

func newRabbitMQSender(_ context.Context, cfg *RabbitMQQueueConfig, log Logger) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rabbitmq queue configuration is missing")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	return &rabbitMQSender{
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		conn:       conn,
		channel:    ch,
		log:        ensureLogger(log),
	}, nil
}

// Send publishes the event as a persistent JSON message.
func (s *rabbitMQSender) Send(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range eventAttributes(evt) {
		headers[k] = v
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing
	s.mu.Lock()
	err = s.channel.Publish(s.exchange, s.routingKey, false, false, msg)
	s.mu.Unlock()
	if err != nil {
		s.log.ErrorObj("rabbitmq publisher send failed", "publisher_rabbitmq_error", map[string]any{
			"event_id": evt.ID,
			"exchange": s.exchange,
			"error":    err,
		})
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}
	s.log.DebugObj("rabbitmq publisher delivered event", "publisher_rabbitmq_delivery", map[string]any{
		"event_id":    evt.ID,
		"routing_key": s.routingKey,
	})
	return nil
}

func (s *rabbitMQSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.channel != nil {
		errs = append(errs, s.channel.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
