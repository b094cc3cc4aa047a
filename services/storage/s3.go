package storagesvc

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/trezcool/tos/core"
)

type s3Storage struct {
	client *s3.Client
	bucket string
}

var _ core.FileStorage = (*s3Storage)(nil)

// NewS3Storage stores blobs in bucket through client.
func NewS3Storage(client *s3.Client, bucket string) core.FileStorage {
	return &s3Storage{client: client, bucket: bucket}
}

// NewS3StorageFromConfig builds the S3 client from the default AWS credential chain.
// A custom endpoint (minio, localstack) switches to path-style addressing.
func NewS3StorageFromConfig(ctx context.Context, conf *core.Config) (core.FileStorage, error) {
	if conf.Storage.S3Bucket == "" {
		return nil, errors.New("storage.s3Bucket is required by the s3 backend")
	}
	awsConf, err := config.LoadDefaultConfig(ctx, config.WithRegion(conf.Storage.S3Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}
	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if conf.Storage.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Storage.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Storage(client, conf.Storage.S3Bucket), nil
}

func (s *s3Storage) Name() string { return "s3" }

func (s *s3Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	// the SDK needs a seekable body to sign the payload
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return errors.Wrap(err, "reading body")
		}
		body = bytes.NewReader(data)
		size = int64(len(data))
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	return errors.Wrap(err, "putting object")
}

func isNotFound(err error) bool {
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func (s *s3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobMissing
		}
		return nil, errors.Wrap(err, "getting object")
	}
	return out.Body, nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return errors.Wrap(err, "deleting object")
	}
	return nil
}

// New returns the file storage backend selected by conf.
func New(ctx context.Context, conf *core.Config) (core.FileStorage, error) {
	switch conf.Storage.Backend {
	case "s3":
		return NewS3StorageFromConfig(ctx, conf)
	case "local", "":
		return NewLocalStorage(conf.Storage.LocalDir)
	default:
		return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}
