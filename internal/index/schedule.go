package index

import (
	"fmt"
	"sync"
)

// Schedule partitions a total document count into dispatch batches and
// tracks completion. One Schedule belongs to exactly one index run; batch
// completion callbacks add finished counts concurrently, everything else
// happens on the dispatch loop.
type Schedule struct {
	total     int
	batchSize int
	batches   int

	mu       sync.Mutex
	current  int // 1-based number of the batch being dispatched
	finished int
}

// NewSchedule builds a schedule for total documents in batches of
// batchSize. The batch size bounds keep one batch inside a single engine
// request window while amortizing dispatch overhead.
func NewSchedule(total, batchSize int) (*Schedule, error) {
	if batchSize < 50 || batchSize > 10000 {
		return nil, fmt.Errorf("batch_size out of range [50, 10000]: %d", batchSize)
	}
	if total < 0 {
		return nil, fmt.Errorf("negative total: %d", total)
	}
	return &Schedule{
		total:     total,
		batchSize: batchSize,
		batches:   (total + batchSize - 1) / batchSize,
	}, nil
}

func (s *Schedule) Total() int   { return s.total }
func (s *Schedule) Batches() int { return s.batches }

// NextBatch claims the next batch number (0-based), consumed in lockstep
// with the id source.
func (s *Schedule) NextBatch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	num := s.current
	s.current++
	return num
}

// AddFinished records a completed batch's document count. Completion order
// is unordered; jobs run concurrently.
func (s *Schedule) AddFinished(n int) {
	s.mu.Lock()
	s.finished += n
	s.mu.Unlock()
}

func (s *Schedule) Finished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Completed verifies every scheduled document was reported finished.
// ignoreMismatch skips the check for resume runs, where pre-existing
// documents legitimately reduce the observed count.
func (s *Schedule) Completed(ignoreMismatch bool) error {
	if ignoreMismatch {
		return nil
	}
	if finished := s.Finished(); finished != s.total {
		return fmt.Errorf("schedule incomplete: finished %d of %d", finished, s.total)
	}
	return nil
}

// String renders dispatch progress for operator-facing logs.
func (s *Schedule) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("batch %d/%d, %d/%d", s.current, s.batches, s.finished, s.total)
}

// Suffix labels the dispatched job of the current batch.
func (s *Schedule) Suffix(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s #%d/%d", name, s.current, s.batches)
}
