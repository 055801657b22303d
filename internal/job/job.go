// Package job provides the dispatch capability the orchestrators consume:
// work is handed over as a descriptor plus a function, admission predicates
// gate how much of it runs concurrently, and a future-like Job handle
// reports the outcome.
package job

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Process categories reported on dispatched work.
const (
	CategoryIndexer         = "indexer"
	CategoryIndexManager    = "indexmanager"
	CategorySnapshooter     = "snapshooter"
	CategorySnapshotManager = "snapshotmanager"
)

// Descriptor describes one unit of dispatched work.
type Descriptor struct {
	Category    string
	Source      string // environment name
	Step        string
	Description string
	Predicates  []Predicate
}

// Predicate decides whether a job may launch, given the descriptors of all
// currently running jobs. Every predicate of a descriptor must pass before
// the dispatcher admits it.
type Predicate func(active []Descriptor) bool

// ConcurrencyLimit admits while fewer than limit jobs of the same
// (category, source) pair are running.
func ConcurrencyLimit(category, source string, limit int) Predicate {
	return func(active []Descriptor) bool {
		running := 0
		for _, desc := range active {
			if desc.Category == category && desc.Source == source {
				running++
			}
		}
		return running < limit
	}
}

// Exclusive admits only while no job of the category is running.
func Exclusive(category string) Predicate {
	return func(active []Descriptor) bool {
		for _, desc := range active {
			if desc.Category == category {
				return false
			}
		}
		return true
	}
}

// Func is the work signature: it returns a processed-document count.
type Func func(ctx context.Context) (int, error)

// Dispatcher hands work to out-of-band execution. Defer is for
// process-class batch work; DeferToThread is for blocking work (snapshot
// polling, post-index hooks). Both return the handle immediately; the
// admission predicates gate when the work launches, not the submission.
type Dispatcher interface {
	Defer(ctx context.Context, desc Descriptor, fn Func) (*Job, error)
	DeferToThread(ctx context.Context, desc Descriptor, fn Func) (*Job, error)
}

// Job is the future-like handle of one dispatched unit of work.
type Job struct {
	id     uuid.UUID
	desc   Descriptor
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	count     int
	err       error
	callbacks []func(*Job)
}

func (j *Job) ID() uuid.UUID          { return j.id }
func (j *Job) Descriptor() Descriptor { return j.desc }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// IsDone reports whether the job has completed.
func (j *Job) IsDone() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Cancel requests cancellation. A running job observes it through its
// context; the handle still completes (with the cancellation error).
func (j *Job) Cancel() { j.cancel() }

// Result returns the outcome. Only valid after Done.
func (j *Job) Result() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count, j.err
}

// Wait blocks until the job completes or ctx is cancelled.
func (j *Job) Wait(ctx context.Context) (int, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// OnDone registers a completion callback. If the job already completed the
// callback runs immediately on the caller's goroutine.
func (j *Job) OnDone(fn func(*Job)) {
	j.mu.Lock()
	if !j.IsDone() {
		j.callbacks = append(j.callbacks, fn)
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()
	fn(j)
}

// complete records the outcome and fires callbacks exactly once. The done
// channel is closed under the mutex so OnDone's completed-check and the
// callback harvest cannot interleave.
func (j *Job) complete(count int, err error) {
	j.mu.Lock()
	j.count = count
	j.err = err
	callbacks := j.callbacks
	j.callbacks = nil
	close(j.done)
	j.mu.Unlock()

	for _, fn := range callbacks {
		fn(j)
	}
}

// Join waits for every job and returns the first error observed, checking
// jobs in dispatch order.
func Join(ctx context.Context, jobs []*Job) error {
	var first error
	for _, j := range jobs {
		if _, err := j.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
