package objstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/geofetch/geofetch/pkg/sources"
)

// Object is a listed remote object
type Object struct {
	Key  string
	Size int64
}

// Store is the subset of an S3 client the source needs
type Store interface {
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	Download(ctx context.Context, bucket, key, dest string) error
}

type minioStore struct {
	client *minio.Client
}

// NewStore connects to the configured S3 compatible endpoint. Without keys
// requests are sent unsigned, which suits public open-data buckets.
func NewStore(cfg Config) (Store, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL

	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	if cfg.AccessKey == "" {
		creds = credentials.NewStatic("", "", "", credentials.SignatureAnonymous)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create object storage client: %w", sources.ErrClient, err)
	}

	return &minioStore{client: client}, nil
}

func (m *minioStore) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var out []Object

	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: list %s/%s: %w", sources.ErrClient, bucket, prefix, obj.Err)
		}

		out = append(out, Object{Key: obj.Key, Size: obj.Size})
	}

	return out, nil
}

func (m *minioStore) Download(ctx context.Context, bucket, key, dest string) error {
	if err := m.client.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("%w: get %s/%s: %w", sources.ErrClient, bucket, key, err)
	}

	return nil
}

var _ Store = (*minioStore)(nil)
