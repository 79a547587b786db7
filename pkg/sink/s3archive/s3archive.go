// Package s3archive uploads finished data logs to an S3 bucket.
package s3archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/itohio/gooven/pkg/sink"
)

// Client is the part of *s3.Client the archiver uses.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	_ Client        = (*s3.Client)(nil)
	_ sink.Archiver = (*Archiver)(nil)
)

// Archiver uploads files under bucket/prefix.
type Archiver struct {
	client Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// New creates an archiver around an existing client.
func New(client Client, bucket, prefix string, log zerolog.Logger) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix, log: log}
}

// NewFromEnv loads the default AWS configuration (environment, shared config, instance role).
func NewFromEnv(ctx context.Context, bucket, prefix string, log zerolog.Logger) (*Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return New(client, bucket, prefix, log), nil
}

// Key returns the object key for a local file.
func (a *Archiver) Key(file string) string {
	return path.Join(a.prefix, filepath.Base(file))
}

// Archive uploads every file. It stops at the first failure.
func (a *Archiver) Archive(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := a.upload(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	key := a.Key(file)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, a.bucket, key, err)
	}

	a.log.Info().Str("bucket", a.bucket).Str("key", key).Msg("data log archived")
	return nil
}
