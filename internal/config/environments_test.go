package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleEnvironments = `
indexer_select:
  build_config.cold_collection: cold_hot

index:
  prod:
    host: http://localhost:9200
    args:
      timeout: 300s
      max_retries: 10
    concurrency: 5

snapshot:
  prod-s3:
    cloud:
      type: aws
      region: us-west-2
    repository:
      name: "s3-$(Y)"
      type: s3
      settings:
        bucket: backups
    indexer: prod
`

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "environments.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEnvironments(t *testing.T) {
	envs, err := LoadEnvironments(writeEnvFile(t, sampleEnvironments))
	if err != nil {
		t.Fatal(err)
	}

	idx, ok := envs.Index["prod"]
	if !ok {
		t.Fatal("index env prod missing")
	}
	if idx.Name != "prod" {
		t.Errorf("Name = %q, want prod", idx.Name)
	}
	if len(idx.Args.Hosts) != 1 || idx.Args.Hosts[0] != "http://localhost:9200" {
		t.Errorf("Hosts = %v", idx.Args.Hosts)
	}
	if idx.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", idx.Concurrency)
	}

	snap, ok := envs.Snapshot["prod-s3"]
	if !ok {
		t.Fatal("snapshot env prod-s3 missing")
	}
	if snap.Indexer != "prod" {
		t.Errorf("Indexer = %q", snap.Indexer)
	}
	if snap.MonitorDelay != 15 {
		t.Errorf("MonitorDelay = %d, want default 15", snap.MonitorDelay)
	}
	if snap.Cloud.Type != "aws" {
		t.Errorf("Cloud.Type = %q", snap.Cloud.Type)
	}

	if envs.IndexerSelect["build_config.cold_collection"] != "cold_hot" {
		t.Errorf("IndexerSelect = %v", envs.IndexerSelect)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		envs    Environments
		wantErr string
	}{
		{
			"index env without host",
			Environments{Index: map[string]IndexEnv{"prod": {}}},
			"no host configured",
		},
		{
			"snapshot env referencing unknown indexer",
			Environments{
				Snapshot: map[string]SnapshotEnv{
					"s": {Indexer: "prod", Repository: map[string]any{"name": "r"}},
				},
			},
			"unknown indexing environment",
		},
		{
			"snapshot env without repository",
			Environments{
				Index: map[string]IndexEnv{"prod": {Host: "http://localhost:9200"}},
				Snapshot: map[string]SnapshotEnv{
					"s": {Indexer: "prod"},
				},
			},
			"no repository configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.envs.Normalize()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Normalize() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	envs := Environments{
		Index: map[string]IndexEnv{"prod": {Host: "http://localhost:9200"}},
	}
	if err := envs.Normalize(); err != nil {
		t.Fatal(err)
	}
	idx := envs.Index["prod"]
	if idx.Concurrency != 3 {
		t.Errorf("Concurrency default = %d, want 3", idx.Concurrency)
	}
	if len(idx.Args.Hosts) != 1 {
		t.Errorf("Hosts not filled from host: %v", idx.Args.Hosts)
	}
}
