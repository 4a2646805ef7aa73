package modelstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/time/rate"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/pkg/config"
)

// S3API is the subset of the S3 client the store uses
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store keeps artifacts in an S3-compatible bucket (AWS S3, MinIO, etc.)
type S3Store struct {
	client    S3API
	bucket    string
	prefix    string
	overallID int64
	limiter   *rate.Limiter
}

var _ contracts.ModelStore = (*S3Store)(nil)

// NewS3Store builds a client from storage configuration and checks the bucket
func NewS3Store(ctx context.Context, cfg config.StorageConfig, overallID int64) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	store := NewS3StoreWithClient(client, cfg.Bucket, cfg.Dir, overallID, cfg.RequestsPerSecond)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("bucket %s not reachable: %w", cfg.Bucket, err)
	}
	return store, nil
}

// NewS3StoreWithClient wraps an existing client. rps <= 0 disables throttling.
func NewS3StoreWithClient(client S3API, bucket, prefix string, overallID int64, rps float64) *S3Store {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &S3Store{
		client:    client,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		overallID: overallID,
		limiter:   limiter,
	}
}

// ObjectKey returns the bucket key for a segment
func (s *S3Store) ObjectKey(key contracts.SegmentKey) string {
	return path.Join(s.prefix, ObjectName(key, s.overallID))
}

// Save uploads the artifact. PutObject replaces the object atomically.
func (s *S3Store) Save(ctx context.Context, key contracts.SegmentKey, artifact []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.ObjectKey(key)),
		Body:        bytes.NewReader(artifact),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put model %s: %w", s.ObjectKey(key), err)
	}
	return nil
}

// Load downloads the artifact
func (s *S3Store) Load(ctx context.Context, key contracts.SegmentKey) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, contracts.ErrNoModelAvailable
		}
		return nil, fmt.Errorf("get model %s: %w", s.ObjectKey(key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", s.ObjectKey(key), err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	// Some S3-compatible servers return a generic API error
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound")
}
