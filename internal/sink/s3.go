package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// ObjectPutter is the subset of the S3 client used by S3Sink.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads each trace as the object <Prefix>/<nodeId>/rdma_operate<suffix>.txt.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Sink creates an S3 sink using the default AWS credential chain.
func NewS3Sink(ctx context.Context, bucket, prefix, region string) (*S3Sink, error) {
	if bucket == "" {
		return nil, errors.NewConfigError("NewS3Sink", "output.s3.bucket is required", nil)
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewConfigError("NewS3Sink", "failed to load AWS config", err)
	}

	return NewS3SinkWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3SinkWithClient creates an S3 sink over an existing client.
func NewS3SinkWithClient(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// ObjectKey returns the object key of key.
func (s *S3Sink) ObjectKey(key Key) string {
	if s.prefix == "" {
		return key.Path()
	}
	return path.Join(s.prefix, key.Path())
}

// Write implements Sink.
func (s *S3Sink) Write(ctx context.Context, key Key, phases []types.Phase) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, phases); err != nil {
		return "", errors.NewSinkError("Write", "failed to render trace", err)
	}

	objectKey := s.ObjectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return "", errors.NewSinkError("Write", fmt.Sprintf("failed to upload s3://%s/%s", s.bucket, objectKey), err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), nil
}
