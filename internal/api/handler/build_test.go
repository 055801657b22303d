package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/newgene/biohub/internal/build"
)

// stubBackend serves a fixed set of build records.
type stubBackend struct {
	records map[string]build.Record
}

func (b *stubBackend) FindOne(_ context.Context, id string) (build.Record, error) {
	rec, ok := b.records[id]
	if !ok {
		return nil, build.ErrNotFound
	}
	return rec, nil
}

func (b *stubBackend) FindByIndexEnv(context.Context, string, string) (build.Record, error) {
	return nil, build.ErrNotFound
}

func (b *stubBackend) All(_ context.Context) ([]build.Record, error) {
	out := make([]build.Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec)
	}
	return out, nil
}

func (b *stubBackend) SaveJobs(context.Context, string, []map[string]any) error      { return nil }
func (b *stubBackend) SetIndexInfo(context.Context, string, string, map[string]any) error {
	return nil
}
func (b *stubBackend) SetSnapshotInfo(context.Context, string, string, map[string]any) error {
	return nil
}
func (b *stubBackend) AddPending(context.Context, string, string) error { return nil }

func testHandlerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildRouter(backend build.Backend) *chi.Mux {
	h := NewBuildHandler(testHandlerLogger(), backend)
	r := chi.NewRouter()
	r.Get("/builds", h.List)
	r.Get("/builds/{buildID}", h.Get)
	return r
}

func TestBuildGet(t *testing.T) {
	backend := &stubBackend{records: map[string]build.Record{
		"b1": {"_id": "b1", "build_config": map[string]any{"name": "mynews"}},
	}}
	router := buildRouter(backend)

	req := httptest.NewRequest(http.MethodGet, "/builds/b1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["_id"] != "b1" {
		t.Errorf("_id = %v", body["_id"])
	}
}

func TestBuildGetNotFound(t *testing.T) {
	router := buildRouter(&stubBackend{records: map[string]build.Record{}})

	req := httptest.NewRequest(http.MethodGet, "/builds/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "BUILD_NOT_FOUND" {
		t.Errorf("error code = %v", errObj["code"])
	}
}

func TestBuildList(t *testing.T) {
	backend := &stubBackend{records: map[string]build.Record{
		"b1": {
			"_id": "b1",
			"index": map[string]any{
				"mynews": map[string]any{"environment": "prod", "created_at": "2026-08-01T00:00:00Z"},
			},
		},
		"b2": {"_id": "b2"},
	}}
	router := buildRouter(backend)

	req := httptest.NewRequest(http.MethodGet, "/builds", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Builds []map[string]any `json:"builds"`
		Total  int              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 || len(body.Builds) != 2 {
		t.Errorf("total = %d, builds = %d, want 2/2", body.Total, len(body.Builds))
	}
	for _, b := range body.Builds {
		if b["id"] == "b1" && b["latest_index"] != "mynews" {
			t.Errorf("b1 latest_index = %v", b["latest_index"])
		}
	}
}
