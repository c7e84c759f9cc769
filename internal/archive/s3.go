// Package archive uploads finished backtest reports to an S3-compatible
// object store so operators keep artifacts beyond the gateway's local
// workspace. Works with AWS S3 and compatible providers (MinIO, R2,
// iDrive e2) via the Endpoint field.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the object-store connection parameters.
type Config struct {
	// Endpoint is the S3-compatible endpoint URL. Leave empty for AWS S3.
	Endpoint string
	// Region is the AWS region or equivalent for the provider.
	Region string
	// Bucket receives every archived artifact.
	Bucket string
	// AccessKey / SecretKey authenticate against the provider.
	AccessKey string
	SecretKey string
}

// Archiver uploads JSON artifacts.
type Archiver struct {
	client *s3.Client
	bucket string
}

// New creates an archiver for the configured bucket.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("archive: invalid endpoint %q: %w", cfg.Endpoint, err)
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// PutBacktestReport stores the report under backtests/<backtestID>.json.
func (a *Archiver) PutBacktestReport(ctx context.Context, backtestID string, report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("archive: marshal report %s: %w", backtestID, err)
	}

	key := fmt.Sprintf("backtests/%s.json", backtestID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}
	return nil
}
