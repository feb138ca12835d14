package modelstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appconfig "github.com/merchantry/affinity/internal/config"
)

// S3API is the subset of the S3 client the store uses, extracted so tests can
// substitute a fake.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps one object per tenant under a configurable key prefix.
type S3Store struct {
	client    S3API
	bucket    string
	keyPrefix string
	logger    *logrus.Logger
}

func NewS3Store(ctx context.Context, cfg *appconfig.Config, logger *logrus.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Store{
		client:    s3.NewFromConfig(awsCfg),
		bucket:    cfg.Storage.S3.Bucket,
		keyPrefix: cfg.Storage.S3.KeyPrefix,
		logger:    logger,
	}, nil
}

func (s *S3Store) key(tenantID uuid.UUID) string {
	return s.keyPrefix + tenantID.String() + ".model"
}

func (s *S3Store) Exists(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(tenantID)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head model object: %w", err)
	}
	return true, nil
}

func (s *S3Store) Load(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(tenantID)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model object: %w", err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read model object body: %w", err)
	}
	return blob, nil
}

func (s *S3Store) Save(ctx context.Context, tenantID uuid.UUID, blob []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(tenantID)),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return fmt.Errorf("failed to put model object: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"bytes":     len(blob),
	}).Debug("Model blob saved to S3")

	return nil
}

func (s *S3Store) Delete(ctx context.Context, tenantID uuid.UUID) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(tenantID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete model object: %w", err)
	}
	return nil
}
