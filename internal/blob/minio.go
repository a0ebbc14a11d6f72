package blob

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// MinioOptions configures NewMinioStore.
type MinioOptions struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Secure          bool
}

// MinioStore keeps objects in a bucket of an S3-compatible server.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to opts.Endpoint. No request is made until the
// first Get or Put.
func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("minio: endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio: new client")
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

// Get downloads the object stored under key.
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, translateMinioError(err, s.bucket, key)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, translateMinioError(err, s.bucket, key)
	}
	return obj, info.Size, nil
}

// Put uploads body under key.
func (s *MinioStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	ct, err := detectContentType(body)
	if err != nil {
		return errors.Wrap(err, "minio: sniff content type")
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		return translateMinioError(err, s.bucket, key)
	}
	return nil
}

func translateMinioError(err error, bucket, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Wrapf(ErrNotFound, "%s/%s", bucket, key)
	}
	return errors.Wrapf(err, "minio: %s/%s", bucket, key)
}
