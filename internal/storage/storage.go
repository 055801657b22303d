package storage

import (
	"context"
	"fmt"

	"github.com/newgene/biohub/internal/config"
)

// ObjectStore provisions the cloud buckets that back snapshot repositories.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, acl string) error
}

// New selects an object-store backend from the cloud config type.
func New(cfg config.CloudConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "aws":
		return NewS3(cfg)
	case "minio":
		return NewMinio(cfg)
	default:
		return nil, fmt.Errorf("unsupported cloud type: %q", cfg.Type)
	}
}
