package publishers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadAWSConfig resolves SDK config for a region, using static credentials
// when a key pair is configured and the default chain otherwise.
func loadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
		opts = append(opts, awscfg.WithCredentialsProvider(creds))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
