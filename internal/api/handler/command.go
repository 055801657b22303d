package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/index"
	"github.com/newgene/biohub/internal/queue"
	"github.com/newgene/biohub/pkg/apierr"
)

// CommandHandler validates index and snapshot requests and enqueues them
// for the hub process. Validation here covers what can be checked without
// talking to the search cluster; the hub re-validates when it runs the
// command.
type CommandHandler struct {
	logger   *slog.Logger
	backend  build.Backend
	producer *queue.Producer
	envs     *config.Environments
}

func NewCommandHandler(logger *slog.Logger, backend build.Backend, producer *queue.Producer, envs *config.Environments) *CommandHandler {
	return &CommandHandler{logger: logger, backend: backend, producer: producer, envs: envs}
}

func (h *CommandHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Env       string   `json:"env"`
		Build     string   `json:"build"`
		IndexName string   `json:"index_name"`
		Mode      string   `json:"mode"`
		Steps     []string `json:"steps"`
		BatchSize int      `json:"batch_size"`
		IDs       []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	if _, ok := h.envs.Index[req.Env]; !ok {
		writeAPIError(w, h.logger, apierr.UnknownIndexEnv(req.Env))
		return
	}
	if req.Mode != "" && !index.Mode(req.Mode).Valid() {
		writeAPIError(w, h.logger, apierr.InvalidMode(req.Mode))
		return
	}
	if req.BatchSize != 0 && (req.BatchSize < 50 || req.BatchSize > 10000) {
		writeAPIError(w, h.logger, apierr.InvalidBatchSize())
		return
	}
	rec, ok := h.findBuild(w, r, req.Build)
	if !ok {
		return
	}
	if len(rec.BuildConfig()) == 0 {
		writeAPIError(w, h.logger, apierr.NoBuildConfig(req.Build))
		return
	}

	id, err := h.producer.Enqueue(r.Context(), queue.CommandMessage{
		Kind:      queue.KindIndex,
		Env:       req.Env,
		Target:    req.Build,
		IndexName: req.IndexName,
		Mode:      req.Mode,
		Steps:     req.Steps,
		BatchSize: req.BatchSize,
		IDs:       req.IDs,
	})
	if err != nil {
		writeAPIError(w, h.logger, apierr.IndexEnqueueFailed(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"command_id": id})
}

func (h *CommandHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Env       string `json:"env"`
		IndexName string `json:"index_name"`
		Snapshot  string `json:"snapshot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	if _, ok := h.envs.Snapshot[req.Env]; !ok {
		writeAPIError(w, h.logger, apierr.UnknownSnapshotEnv(req.Env))
		return
	}

	id, err := h.producer.Enqueue(r.Context(), queue.CommandMessage{
		Kind:      queue.KindSnapshot,
		Env:       req.Env,
		IndexName: req.IndexName,
		Snapshot:  req.Snapshot,
	})
	if err != nil {
		writeAPIError(w, h.logger, apierr.SnapshotEnqueueFailed(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"command_id": id})
}

func (h *CommandHandler) SnapshotBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Build string `json:"build"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	rec, ok := h.findBuild(w, r, req.Build)
	if !ok {
		return
	}
	env := rec.AutoBuildEnv()
	if env == "" {
		writeAPIError(w, h.logger, apierr.UnknownSnapshotEnv(""))
		return
	}
	if _, exists := h.envs.Snapshot[env]; !exists {
		writeAPIError(w, h.logger, apierr.UnknownSnapshotEnv(env))
		return
	}

	id, err := h.producer.Enqueue(r.Context(), queue.CommandMessage{
		Kind:   queue.KindSnapshotBuild,
		Target: req.Build,
	})
	if err != nil {
		writeAPIError(w, h.logger, apierr.SnapshotEnqueueFailed(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"command_id": id})
}

func (h *CommandHandler) findBuild(w http.ResponseWriter, r *http.Request, id string) (build.Record, bool) {
	rec, err := h.backend.FindOne(r.Context(), id)
	if err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.BuildNotFound(id))
			return nil, false
		}
		writeAPIError(w, h.logger, apierr.BuildGetFailed(err))
		return nil, false
	}
	return rec, true
}
