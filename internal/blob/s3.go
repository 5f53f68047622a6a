// internal/blob/s3.go
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ata-pipeline/internal/config"
	"ata-pipeline/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client the store calls.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads event objects from S3.
//
// Every call is retried at the application level with exponential
// backoff (200ms doubling, capped at 2s). SDK retries are disabled so the
// two never stack. Each attempt gets its own S3Timeout.
type S3Store struct {
	client   S3API
	timeout  time.Duration
	attempts int
	metrics  *metrics.Metrics
}

// NewS3Client loads the default AWS config for cfg.AWSRegion with SDK
// retries turned off: one SDK call is one HTTP request.
//
// RetryMaxAttempts = 0 would mean "SDK default" (3 attempts), so the
// retryer itself is replaced. A non-empty cfg.S3Endpoint points the client
// at an S3-compatible endpoint with path-style addressing.
func NewS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Store wraps client. m may be nil.
func NewS3Store(client S3API, cfg config.Config, m *metrics.Metrics) *S3Store {
	attempts := cfg.S3AppRetries
	if attempts < 1 {
		attempts = 1
	}
	timeout := cfg.S3Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &S3Store{
		client:   client,
		timeout:  timeout,
		attempts: attempts,
		metrics:  m,
	}
}

// List pages through ListObjectsV2. A failed page restarts the listing.
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	err := s.withRetry(ctx, "list", func(ctx context.Context) error {
		keys = keys[:0]
		p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				keys = append(keys, aws.ToString(obj.Key))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}
	return keys, nil
}

// Open downloads the whole object inside one attempt, so the per-attempt
// timeout covers the body read too.
func (s *S3Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	var body []byte
	err := s.withRetry(ctx, "get", func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		body, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// withRetry
// ---------
// Runs fn up to s.attempts times.
//   - each attempt gets a fresh timeout derived from ctx
//   - missing bucket/key is final and maps to ErrNotFound
//   - ctx cancellation stops immediately
func (s *S3Store) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= s.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		actx, cancel := context.WithTimeout(ctx, s.timeout)
		err := fn(actx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.metrics.BlobError(op)

		if isNotFound(err) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if attempt == s.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}
	return lastErr
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	return errors.As(err, &noKey) || errors.As(err, &noBucket)
}
