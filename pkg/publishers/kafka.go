package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// kafkaProducer is the subset of sarama.SyncProducer used by the sender.
type kafkaProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// kafkaSender implements queueSender for Kafka topics.
type kafkaSender struct {
	topic    string
	producer kafkaProducer
	log      Logger
}

func newKafkaSender(_ context.Context, cfg *KafkaQueueConfig, log Logger) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kafka queue configuration is missing")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Retry.Max = 3
	sc.Producer.Timeout = 10 * time.Second
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &kafkaSender{
		topic:    cfg.Topic,
		producer: producer,
		log:      ensureLogger(log),
	}, nil
}

// Send writes the event keyed by its id, so every alert for an article lands
// on the same partition.
func (s *kafkaSender) Send(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(evt.ID),
		Value: sarama.ByteEncoder(payload),
	}
	for k, v := range eventAttributes(evt) {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		s.log.ErrorObj("kafka publisher send failed", "publisher_kafka_error", map[string]any{
			"event_id": evt.ID,
			"topic":    s.topic,
			"error":    err,
		})
		return fmt.Errorf("send message to kafka: %w", err)
	}
	s.log.DebugObj("kafka publisher delivered event", "publisher_kafka_delivery", map[string]any{
		"event_id":  evt.ID,
		"partition": partition,
		"offset":    offset,
	})
	return nil
}

func (s *kafkaSender) Close() error {
	return s.producer.Close()
}
