package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a trimmed adaptation of the teacher's ExecutionStats
// (internal/parallel/pool.go): enough bookkeeping for an EvaluationPool's
// own health metrics, without the historical sample buffers the teacher's
// longer-lived constraint-search workloads wanted but a reactive query
// engine's much shorter evaluation tasks do not need.
type Stats struct {
	mu sync.Mutex

	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksCancelled int64

	PeakWorkerCount int
	PeakQueueDepth  int
	ScaleUpEvents   int64
	ScaleDownEvents int64

	LastError           error
	TotalTaskDuration   time.Duration
	longestTaskDuration time.Duration
}

func newStats() *Stats { return &Stats{} }

func (s *Stats) recordSubmitted() { atomic.AddInt64(&s.TasksSubmitted, 1) }

func (s *Stats) recordCompleted(d time.Duration) {
	atomic.AddInt64(&s.TasksCompleted, 1)
	s.mu.Lock()
	s.TotalTaskDuration += d
	if d > s.longestTaskDuration {
		s.longestTaskDuration = d
	}
	s.mu.Unlock()
}

func (s *Stats) recordFailed(err error) {
	atomic.AddInt64(&s.TasksFailed, 1)
	s.mu.Lock()
	s.LastError = err
	s.mu.Unlock()
}

func (s *Stats) recordCancelled() { atomic.AddInt64(&s.TasksCancelled, 1) }

func (s *Stats) recordQueueDepth(depth, workers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if depth > s.PeakQueueDepth {
		s.PeakQueueDepth = depth
	}
	if workers > s.PeakWorkerCount {
		s.PeakWorkerCount = workers
	}
}

func (s *Stats) recordScaleUp()   { atomic.AddInt64(&s.ScaleUpEvents, 1) }
func (s *Stats) recordScaleDown() { atomic.AddInt64(&s.ScaleDownEvents, 1) }

// Completed returns the number of tasks that have finished without
// panicking, safe to read concurrently with a running pool.
func (s *Stats) Completed() int64 { return atomic.LoadInt64(&s.TasksCompleted) }

// AverageTaskDuration returns the mean completed-task duration, or zero if
// no task has completed yet.
func (s *Stats) AverageTaskDuration() time.Duration {
	completed := atomic.LoadInt64(&s.TasksCompleted)
	if completed == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TotalTaskDuration / time.Duration(completed)
}

// LongestTaskDuration returns the slowest single completed task's duration
// observed so far.
func (s *Stats) LongestTaskDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longestTaskDuration
}
