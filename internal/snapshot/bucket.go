package snapshot

import (
	"context"
	"fmt"

	"github.com/newgene/biohub/internal/storage"
)

// Bucket wraps the cloud-side storage bucket backing a snapshot
// repository. Buckets are provisioned lazily during pre_snapshot and
// never deleted by the hub.
type Bucket struct {
	store storage.ObjectStore
	name  string
}

func NewBucket(store storage.ObjectStore, name string) *Bucket {
	return &Bucket{store: store, name: name}
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) Exists(ctx context.Context) (bool, error) {
	ok, err := b.store.BucketExists(ctx, b.name)
	if err != nil {
		return false, fmt.Errorf("check bucket %q: %w", b.name, err)
	}
	return ok, nil
}

func (b *Bucket) Create(ctx context.Context, acl string) error {
	if err := b.store.CreateBucket(ctx, b.name, acl); err != nil {
		return fmt.Errorf("create bucket %q: %w", b.name, err)
	}
	return nil
}

// EnsureFor provisions the bucket and repository a snapshot config
// points at, in that order. Both operations are idempotent so a
// half-provisioned environment converges on retry.
func EnsureFor(ctx context.Context, store storage.ObjectStore, repo Creator, cfg RepositoryConfig) error {
	exists, err := repo.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	bucket := NewBucket(store, cfg.Bucket())
	ok, err := bucket.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if err := bucket.Create(ctx, cfg.ACL()); err != nil {
			return err
		}
	}
	return repo.Create(ctx, cfg.Type(), cfg.Settings())
}

// Creator is the slice of the search repository API needed to provision
// a snapshot repository.
type Creator interface {
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, repoType string, settings map[string]any) error
}
