package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/notafacil/receipt-pipeline/internal/common"
)

// S3Store reads images from an S3-compatible bucket (AWS, MinIO, B2).
type S3Store struct {
	client *s3.Client
	bucket string
	log    *slog.Logger
}

// NewS3Store builds the S3 client from static credentials. A custom endpoint
// switches on path-style addressing for non-AWS backends.
func NewS3Store(ctx context.Context, cfg common.ImageStoreConfig, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("storage.s3_ready", "bucket", cfg.Bucket, "region", cfg.Region)
	return &S3Store{client: client, bucket: cfg.Bucket, log: logger}, nil
}

func (s *S3Store) LoadImage(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", ref, err)
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			s.log.Warn("storage.s3_body_close_failed", "ref", ref, "error", err)
		}
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", ref, err)
	}
	return data, nil
}
