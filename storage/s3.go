package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/bkps-admin/interfaces"
)

type S3Opts struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string

	// Static credentials. When empty the default AWS credential chain applies.
	AccessKey string
	SecretKey string
}

// S3Artifact is an artifact stored as a single S3 (or S3-compatible) object.
// Objects are written private.
type S3Artifact struct {
	client      *s3.S3
	bucket      string
	key         string
	log         *slog.Logger
	locationURI string
}

func NewS3Artifact(opts S3Opts, log *slog.Logger) (*S3Artifact, error) {
	uri := fmt.Sprintf("s3://%s/%s", opts.Bucket, opts.Key)

	cfg := aws.Config{
		Region: aws.String(opts.Region),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Artifact{
		client:      s3.New(sess),
		bucket:      opts.Bucket,
		key:         opts.Key,
		log:         log,
		locationURI: uri,
	}, nil
}

// Fetch downloads the object. Returns ErrContentNotFound if it does not exist.
func (a *S3Artifact) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()

	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, interfaces.ErrContentNotFound
		}

		a.log.Error("Failed to get object from S3",
			slog.String("bucket", a.bucket),
			slog.String("key", a.key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	a.log.Debug("Fetched artifact from S3",
		slog.String("bucket", a.bucket),
		slog.String("key", a.key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store uploads data, replacing the object.
func (a *S3Artifact) Store(ctx context.Context, data []byte) error {
	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key),
		Body:   bytes.NewReader(data),
		ACL:    aws.String(s3.ObjectCannedACLPrivate),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upload object to S3: %v", interfaces.ErrBackendUnavailable, err)
	}

	a.log.Debug("Stored artifact in S3",
		slog.String("bucket", a.bucket),
		slog.String("key", a.key))

	return nil
}

// LocationURI returns the location without credentials.
func (a *S3Artifact) LocationURI() string {
	return a.locationURI
}
