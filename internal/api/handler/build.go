package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/pkg/apierr"
)

type BuildHandler struct {
	logger  *slog.Logger
	backend build.Backend
}

func NewBuildHandler(logger *slog.Logger, backend build.Backend) *BuildHandler {
	return &BuildHandler{logger: logger, backend: backend}
}

func (h *BuildHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.backend.All(r.Context())
	if err != nil {
		writeAPIError(w, h.logger, apierr.BuildGetFailed(err))
		return
	}

	builds := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		builds = append(builds, summarize(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"builds": builds,
		"total":  len(builds),
	})
}

func (h *BuildHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")

	rec, err := h.backend.FindOne(r.Context(), id)
	if err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.BuildNotFound(id))
			return
		}
		writeAPIError(w, h.logger, apierr.BuildGetFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any(rec))
}

// summarize reduces a build record to the fields the build list shows.
func summarize(rec build.Record) map[string]any {
	out := map[string]any{"id": rec.ID()}
	if latest := rec.LatestIndex(); latest != "" {
		out["latest_index"] = latest
	}
	if indices := rec.Indices(); len(indices) > 0 {
		names := make([]string, 0, len(indices))
		for name := range indices {
			names = append(names, name)
		}
		out["indices"] = names
	}
	if jobs := rec.Jobs(); len(jobs) > 0 {
		out["last_job"] = jobs[len(jobs)-1]
	}
	if pending, ok := rec["pending"]; ok {
		out["pending"] = pending
	}
	return out
}
