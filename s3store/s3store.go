// Package s3store wraps the S3-compatible object store the orchestrator
// reads build sources from and writes artifact metadata about.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/open-runtimes/executor/utils"
)

// Store is a thin wrapper over the S3 client scoped to one bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// Config holds the connection parameters for an S3-compatible endpoint.
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// New builds a Store against a (possibly non-AWS) S3-compatible endpoint
// using static credentials and path-style addressing, since most
// self-hosted S3-compatible stores don't support virtual-hosted buckets.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %s", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// GetObject downloads key in full and returns its body bytes. Transient
// failures (the build source download is the one call on the create path
// with no caller-visible retry of its own) are retried with backoff before
// surfacing an error.
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := utils.RetryWithBackoff(func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return err
		}
		body = buf.Bytes()
		return nil
	}, 3, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %s", key, err)
	}
	return body, nil
}

// HeadObject returns the content length of key.
func (s *Store) HeadObject(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to head object %q: %s", key, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}
