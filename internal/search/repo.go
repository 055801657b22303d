package search

import "context"

// Repository wraps the snapshot-repository operations of one named
// repository, the /_snapshot/<name> surface.
type Repository struct {
	client Client
	Name   string
}

func NewRepository(client Client, name string) Repository {
	return Repository{client: client, Name: name}
}

func (r Repository) Exists(ctx context.Context) (bool, error) {
	return r.client.RepositoryExists(ctx, r.Name)
}

func (r Repository) Create(ctx context.Context, repoType string, settings map[string]any) error {
	return r.client.CreateRepository(ctx, r.Name, repoType, settings)
}

func (r Repository) Delete(ctx context.Context) error {
	return r.client.DeleteRepository(ctx, r.Name)
}
