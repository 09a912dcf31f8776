package manifest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/backmassage/autoencode/internal/config"
)

const objectPrefix = "graphs/"

// MinIOStore keeps manifests in an S3-compatible bucket under graphs/.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore connects to cfg.Endpoint and creates the bucket when it
// does not exist.
func NewMinIOStore(ctx context.Context, cfg config.Storage) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinIOStore) Put(ctx context.Context, m *Manifest) (string, error) {
	data, err := marshal(m)
	if err != nil {
		return "", err
	}
	name := objectPrefix + m.Key()
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/yaml",
	})
	if err != nil {
		return "", fmt.Errorf("failed to save manifest: %w", err)
	}
	return s.bucket + "/" + name, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (*Manifest, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectPrefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	return Decode(obj)
}
