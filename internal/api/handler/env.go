package handler

import (
	"log/slog"
	"net/http"

	"github.com/newgene/biohub/internal/config"
)

// EnvHandler reports the configured indexing and snapshot environments,
// with credentials withheld.
type EnvHandler struct {
	logger *slog.Logger
	envs   *config.Environments
}

func NewEnvHandler(logger *slog.Logger, envs *config.Environments) *EnvHandler {
	return &EnvHandler{logger: logger, envs: envs}
}

func (h *EnvHandler) List(w http.ResponseWriter, r *http.Request) {
	indexEnvs := make(map[string]any, len(h.envs.Index))
	for name, env := range h.envs.Index {
		indexEnvs[name] = map[string]any{
			"hosts":       env.Args.Hosts,
			"concurrency": env.Concurrency,
		}
	}

	snapshotEnvs := make(map[string]any, len(h.envs.Snapshot))
	for name, env := range h.envs.Snapshot {
		snapshotEnvs[name] = map[string]any{
			"indexer":       env.Indexer,
			"cloud":         env.Cloud.Type,
			"repository":    env.Repository,
			"monitor_delay": env.MonitorDelay,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"indexer_select": h.envs.IndexerSelect,
		"index":          indexEnvs,
		"snapshot":       snapshotEnvs,
	})
}
