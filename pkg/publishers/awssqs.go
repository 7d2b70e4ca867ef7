package publishers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsClient defines the minimal subset of the SQS client used by the AWS sender.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// awsSQSSender implements queueSender for AWS SQS.
type awsSQSSender struct {
	queueURL string
	client   sqsClient
	log      Logger
}

// newAWSSQSSender builds an SQS sender for the configured region.
func newAWSSQSSender(ctx context.Context, cfg *AWSSQSPublisherConfig, log Logger) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("aws queue configuration is missing")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}

	return &awsSQSSender{
		queueURL: cfg.QueueURL,
		client:   sqs.NewFromConfig(awsCfg),
		log:      ensureLogger(log),
	}, nil
}

// Send publishes the event to the configured SQS queue.
func (s *awsSQSSender) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: sqsAttributes(evt),
	}

	resp, err := s.client.SendMessage(ctx, input)
	if err != nil {
		s.log.ErrorObj("sqs publisher send failed", "publisher_sqs_error", map[string]any{
			"event_id": evt.ID,
			"error":    err,
		})
		return fmt.Errorf("send message to sqs: %w", err)
	}
	s.log.DebugObj("sqs publisher delivered event", "publisher_sqs_delivery", map[string]any{
		"event_id":   evt.ID,
		"message_id": aws.ToString(resp.MessageId),
	})
	return nil
}

// sqsAttributes exposes routing fields so subscribers can filter without
// decoding the body.
func sqsAttributes(evt Event) map[string]types.MessageAttributeValue {
	src := eventAttributes(evt)
	attrs := make(map[string]types.MessageAttributeValue, len(src))
	for k, v := range src {
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return attrs
}
