package search

import (
	"context"
	"errors"
)

// Snapshot wraps the operations of one named snapshot within a repository,
// the /_snapshot/<repository>/<name> surface.
type Snapshot struct {
	client     Client
	Repository Repository
	Name       string
}

func NewSnapshot(client Client, repository, name string) Snapshot {
	return Snapshot{
		client:     client,
		Repository: NewRepository(client, repository),
		Name:       name,
	}
}

func (s Snapshot) Exists(ctx context.Context) (bool, error) {
	state, err := s.State(ctx)
	if err != nil {
		return false, err
	}
	return state != StateNA && state != StateMissing, nil
}

func (s Snapshot) Create(ctx context.Context, index string) error {
	return s.client.CreateSnapshot(ctx, s.Repository.Name, s.Name, index)
}

// State resolves the snapshot lifecycle state, synthesizing NA when the
// repository is absent and Missing when the snapshot is.
func (s Snapshot) State(ctx context.Context) (string, error) {
	exists, err := s.Repository.Exists(ctx)
	if err != nil {
		return "", err
	}
	if !exists {
		return StateNA, nil
	}

	state, err := s.client.GetSnapshotState(ctx, s.Repository.Name, s.Name)
	if errors.Is(err, ErrNotFound) {
		return StateMissing, nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

func (s Snapshot) Delete(ctx context.Context) error {
	return s.client.DeleteSnapshot(ctx, s.Repository.Name, s.Name)
}
