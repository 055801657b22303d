package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/newgene/biohub/internal/config"
)

// Minio is the ObjectStore backend for MinIO deployments.
type Minio struct {
	mc     *minio.Client
	region string
}

func NewMinio(cfg config.CloudConfig) (*Minio, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio cloud config: no endpoint")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Minio{mc: mc, region: cfg.Region}, nil
}

func (m *Minio) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.mc.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("check bucket: %w", err)
	}
	return exists, nil
}

// CreateBucket creates the bucket. MinIO has no bucket ACLs; the acl
// argument is accepted for interface parity and ignored.
func (m *Minio) CreateBucket(ctx context.Context, bucket, _ string) error {
	if err := m.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}
