package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is the subset of the S3 client used by the archive publisher.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Publisher archives each alert as one JSON object.
type s3Publisher struct {
	id     string
	typ    string
	bucket string
	prefix string
	client s3Client
	log    Logger
}

func newS3Publisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.S3 == nil {
		return nil, fmt.Errorf("publisher %q missing s3 configuration", cfg.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sc := cfg.S3

	awsCfg, err := loadAWSConfig(ctx, sc.Region, sc.AccessKeyID, sc.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.UsePathStyle
	})

	return &s3Publisher{
		id:     cfg.ID,
		typ:    cfg.Type,
		bucket: sc.Bucket,
		prefix: sc.Prefix,
		client: client,
		log:    ensureLogger(log),
	}, nil
}

func (p *s3Publisher) ID() string   { return p.id }
func (p *s3Publisher) Type() string { return p.typ }

// Publish writes the event JSON under a date partitioned key.
func (p *s3Publisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := objectKey(p.prefix, evt)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3 object %s: %w", key, err)
	}
	p.log.DebugObj("s3 publisher archived event", "publisher_s3_delivery", map[string]any{
		"event_id": evt.ID,
		"bucket":   p.bucket,
		"key":      key,
	})
	return nil
}

// objectKey returns {prefix}/{yyyy}/{mm}/{dd}/{event id}.json, dated by detection time in UTC.
func objectKey(prefix string, evt Event) string {
	day := evt.DetectedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, day, evt.ID+".json")
}
