// Package offsite replicates sealed envelopes to S3-compatible object
// storage so archives survive the loss of the host.
package offsite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/config"
)

// Uploader pushes envelope files to a bucket. A zero-config uploader is
// disabled and uploads are skipped.
type Uploader struct {
	logger zerolog.Logger
	client *s3.Client
	bucket string
	prefix string
}

func NewUploader(logger zerolog.Logger, cfg config.S3Config) *Uploader {
	u := &Uploader{
		logger: logger.With().Str("component", "offsite").Logger(),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}
	if cfg.Bucket == "" {
		return u
	}

	u.client = s3.New(s3.Options{
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	})
	return u
}

// Enabled reports whether offsite replication is configured.
func (u *Uploader) Enabled() bool { return u.client != nil }

// Upload streams one envelope file into the bucket under the configured
// prefix. Failures are the caller's to handle; the local envelope is
// authoritative either way.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	if !u.Enabled() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open envelope for upload: %w", err)
	}
	defer f.Close()

	key := u.prefix + filepath.Base(path)
	u.logger.Info().Str("bucket", u.bucket).Str("key", key).Msg("uploading envelope offsite")

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s/%s: %w", filepath.Base(path), u.bucket, key, err)
	}

	u.logger.Info().Str("bucket", u.bucket).Str("key", key).Msg("envelope uploaded")
	return nil
}
