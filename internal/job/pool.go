package job

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Pool is the in-process Dispatcher. Submission returns the Job handle
// immediately; each job waits on its own goroutine until every predicate
// of the descriptor passes against the set of running jobs, then runs.
type Pool struct {
	logger *slog.Logger

	mu      sync.Mutex
	active  map[uuid.UUID]Descriptor
	changed chan struct{}
}

func NewPool(logger *slog.Logger) *Pool {
	return &Pool{
		logger:  logger,
		active:  make(map[uuid.UUID]Descriptor),
		changed: make(chan struct{}),
	}
}

// Active snapshots the descriptors of currently running jobs.
func (p *Pool) Active() []Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Descriptor, 0, len(p.active))
	for _, desc := range p.active {
		out = append(out, desc)
	}
	return out
}

func (p *Pool) Defer(ctx context.Context, desc Descriptor, fn Func) (*Job, error) {
	return p.launch(ctx, desc, fn)
}

// DeferToThread is for blocking work. The pool runs every job on its own
// goroutine, so it shares Defer's implementation; the separate entry point
// preserves the submitter's intent in call sites and logs.
func (p *Pool) DeferToThread(ctx context.Context, desc Descriptor, fn Func) (*Job, error) {
	return p.launch(ctx, desc, fn)
}

func (p *Pool) launch(ctx context.Context, desc Descriptor, fn Func) (*Job, error) {
	id := uuid.New()
	jobCtx, cancel := context.WithCancel(ctx)
	j := &Job{id: id, desc: desc, cancel: cancel, done: make(chan struct{})}

	p.logger.Debug("job submitted",
		slog.String("id", id.String()),
		slog.String("category", desc.Category),
		slog.String("source", desc.Source),
		slog.String("step", desc.Step))

	go func() {
		defer cancel()

		// Admission: wait until every predicate passes. Each completed
		// job wakes waiters for re-evaluation. A cancelled pending job
		// never launches.
		for {
			if err := jobCtx.Err(); err != nil {
				j.complete(0, err)
				return
			}
			p.mu.Lock()
			if p.admitted(desc) {
				p.active[id] = desc
				p.mu.Unlock()
				break
			}
			wake := p.changed
			p.mu.Unlock()

			select {
			case <-jobCtx.Done():
				j.complete(0, jobCtx.Err())
				return
			case <-wake:
			}
		}

		count, err := fn(jobCtx)
		p.release(id)
		j.complete(count, err)
	}()
	return j, nil
}

// admitted evaluates desc's predicates against the running set. Caller
// holds the mutex.
func (p *Pool) admitted(desc Descriptor) bool {
	active := make([]Descriptor, 0, len(p.active))
	for _, d := range p.active {
		active = append(active, d)
	}
	for _, pred := range desc.Predicates {
		if !pred(active) {
			return false
		}
	}
	return true
}

func (p *Pool) release(id uuid.UUID) {
	p.mu.Lock()
	delete(p.active, id)
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}
