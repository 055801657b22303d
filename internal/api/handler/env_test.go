package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/newgene/biohub/internal/config"
)

func TestEnvList(t *testing.T) {
	envs := &config.Environments{
		IndexerSelect: map[string]string{"build_config.cold_collection": "cold_hot"},
		Index: map[string]config.IndexEnv{
			"prod": {
				Name:        "prod",
				Args:        config.ClientArgs{Hosts: []string{"http://localhost:9200"}},
				Concurrency: 3,
			},
		},
		Snapshot: map[string]config.SnapshotEnv{
			"prod-s3": {
				Name:    "prod-s3",
				Indexer: "prod",
				Cloud: config.CloudConfig{
					Type:      "aws",
					AccessKey: "AKIA-SECRET",
					SecretKey: "very-secret",
				},
				Repository:   map[string]any{"name": "repo"},
				MonitorDelay: 15,
			},
		},
	}

	h := NewEnvHandler(testHandlerLogger(), envs)
	req := httptest.NewRequest(http.MethodGet, "/environments", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		IndexerSelect map[string]string         `json:"indexer_select"`
		Index         map[string]map[string]any `json:"index"`
		Snapshot      map[string]map[string]any `json:"snapshot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.IndexerSelect["build_config.cold_collection"] != "cold_hot" {
		t.Errorf("indexer_select = %v", body.IndexerSelect)
	}
	if body.Index["prod"]["concurrency"] != float64(3) {
		t.Errorf("index env = %v", body.Index["prod"])
	}

	snap := body.Snapshot["prod-s3"]
	if snap["indexer"] != "prod" || snap["cloud"] != "aws" {
		t.Errorf("snapshot env = %v", snap)
	}
	// Credentials never cross the API boundary.
	raw := rec.Body.String()
	for _, secret := range []string{"AKIA-SECRET", "very-secret"} {
		if strings.Contains(raw, secret) {
			t.Errorf("response leaks credential %q", secret)
		}
	}
}
