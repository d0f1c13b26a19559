package sync

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the export object. Endpoint selects an S3-compatible
// service such as MinIO and switches to path-style addressing.
type S3Config struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string
}

// S3Destination overwrites a single object with each export.
type S3Destination struct {
	api    *s3.Client
	bucket string
	key    string
}

// NewS3Destination resolves credentials from the default AWS chain.
func NewS3Destination(ctx context.Context, c S3Config) (*S3Destination, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{api: api, bucket: c.Bucket, key: c.Key}, nil
}

func (d *S3Destination) Name() string {
	return "s3://" + d.bucket + "/" + d.key
}

func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(d.key)),
		Metadata:      map[string]string{"kd-export-version": exportVersion},
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", d.Name(), err)
	}
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".zst":
		return "application/zstd"
	case ".json":
		return "application/json"
	}
	return "application/x-ndjson"
}
