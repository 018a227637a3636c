package drive

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config carries the settings for an S3-compatible payload backend.
type S3Config struct {
	Region       string
	BaseEndpoint string
	Bucket       string
	RootUser     string
	RootPassword string
}

// S3PayloadStore keeps committed payload blobs in an S3-compatible bucket.
// Peers never talk to the bucket directly; only the commit path does.
type S3PayloadStore struct {
	client *s3.Client
	bucket string
}

func NewS3PayloadStore(ctx context.Context, cfg S3Config) (*S3PayloadStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3PayloadStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3PayloadStore) Put(ctx context.Context, file InternalFileID, key string, data []byte) error {
	objectKey := PayloadObjectKey(file, key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3PayloadStore) Get(ctx context.Context, file InternalFileID, key string) ([]byte, error) {
	objectKey := PayloadObjectKey(file, key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3PayloadStore) Delete(ctx context.Context, file InternalFileID, key string) error {
	objectKey := PayloadObjectKey(file, key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	return err
}

var _ PayloadStore = (*S3PayloadStore)(nil)
