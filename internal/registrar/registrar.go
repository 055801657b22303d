// Package registrar records the start/success/failure of named pipeline
// steps under a build record, so operators can see across process restarts
// exactly which step of a run failed and why.
package registrar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/newgene/biohub/internal/build"
)

// Pipeline step names.
const (
	StepPreIndex     = "pre_index"
	StepIndex        = "index"
	StepPostIndex    = "post_index"
	StepPreSnapshot  = "pre_snapshot"
	StepSnapshot     = "snapshot"
	StepPostSnapshot = "post_snapshot"
)

// Step states. An entry left at StatusInProgress with no terminal
// follow-up is a crash artifact; Prune rewrites those at startup.
const (
	StatusInProgress = "in progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// Registrar appends status transitions for one step of one build's run.
type Registrar struct {
	backend build.Backend
	buildID string
	step    string
}

func New(backend build.Backend, buildID, step string) *Registrar {
	return &Registrar{backend: backend, buildID: buildID, step: step}
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// Started appends an in-progress entry for the step.
func (r *Registrar) Started(ctx context.Context) error {
	rec, err := r.backend.FindOne(ctx, r.buildID)
	if err != nil {
		return fmt.Errorf("registrar started: %w", err)
	}
	jobs := append(rec.Jobs(), map[string]any{
		"step":       r.step,
		"status":     StatusInProgress,
		"started_at": now(),
	})
	if err := r.backend.SaveJobs(ctx, r.buildID, jobs); err != nil {
		return fmt.Errorf("registrar started: %w", err)
	}
	return nil
}

// Succeed finalizes the step's in-progress entry with an optional result
// payload.
func (r *Registrar) Succeed(ctx context.Context, result map[string]any) error {
	return r.finalize(ctx, StatusSuccess, result, "")
}

// Failed finalizes the step's in-progress entry with the error string.
func (r *Registrar) Failed(ctx context.Context, cause error) error {
	return r.finalize(ctx, StatusFailed, nil, cause.Error())
}

func (r *Registrar) finalize(ctx context.Context, status string, result map[string]any, errStr string) error {
	rec, err := r.backend.FindOne(ctx, r.buildID)
	if err != nil {
		return fmt.Errorf("registrar %s: %w", status, err)
	}
	jobs := rec.Jobs()

	entry := findOpen(jobs, r.step)
	if entry == nil {
		// No in-progress entry survived (e.g. pruned concurrently);
		// record the terminal state on a fresh entry anyway.
		entry = map[string]any{"step": r.step, "started_at": now()}
		jobs = append(jobs, entry)
	}
	entry["status"] = status
	entry["time"] = now()
	if result != nil {
		entry["result"] = result
	}
	if errStr != "" {
		entry["err"] = errStr
	}

	if err := r.backend.SaveJobs(ctx, r.buildID, jobs); err != nil {
		return fmt.Errorf("registrar %s: %w", status, err)
	}
	return nil
}

// findOpen returns the most recent in-progress entry for the step.
func findOpen(jobs []map[string]any, step string) map[string]any {
	for i := len(jobs) - 1; i >= 0; i-- {
		if jobs[i]["step"] == step && jobs[i]["status"] == StatusInProgress {
			return jobs[i]
		}
	}
	return nil
}

// Prune rewrites in-progress entries left behind by a crashed run to a
// terminal failed state. Managers call this once at startup.
func Prune(ctx context.Context, backend build.Backend, logger *slog.Logger) error {
	records, err := backend.All(ctx)
	if err != nil {
		return fmt.Errorf("prune stale status: %w", err)
	}

	for _, rec := range records {
		jobs := rec.Jobs()
		stale := 0
		for _, entry := range jobs {
			if entry["status"] == StatusInProgress {
				entry["status"] = StatusFailed
				entry["time"] = now()
				entry["err"] = "stale entry: run interrupted before completion"
				stale++
			}
		}
		if stale == 0 {
			continue
		}
		if err := backend.SaveJobs(ctx, rec.ID(), jobs); err != nil {
			return fmt.Errorf("prune stale status for %s: %w", rec.ID(), err)
		}
		logger.Warn("pruned stale step status",
			slog.String("build", rec.ID()),
			slog.Int("entries", stale))
	}
	return nil
}
