package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/gullradriel/nilorea-library-sub000/internal/workerpool"
	"github.com/gullradriel/nilorea-library-sub000/pkg/nlog"
)

// TimerTask represents a task scheduled for future execution
type TimerTask struct {
	ID       string
	ExpiryAt time.Time
	Callback func()
	index    int // index in the heap (for heap.Interface)
}

// timerHeap is a min-heap of TimerTasks ordered by ExpiryAt
type timerHeap []*TimerTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	n := len(*h)
	task := x.(*TimerTask)
	task.index = n
	*h = append(*h, task)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil  // avoid memory leak
	task.index = -1 // for safety
	*h = old[0 : n-1]
	return task
}

// TimerManager manages scheduled tasks using a min-heap. Expired callbacks
// are dispatched through an internal/workerpool.Pool (workers fixed slots,
// waiting list bounded by maxWaiting, unbounded when maxWaiting<=0) rather
// than one bare goroutine per expiry, so a
// burst of simultaneously-expiring timers — every station's inactivity
// deadline landing in the same run() tick, say — queues instead of
// spawning an unbounded number of goroutines.
type TimerManager struct {
	heap         timerHeap
	mu           sync.Mutex
	wakeup       chan struct{}
	tasks        map[string]*TimerTask // for O(1) lookup by ID
	workers      int
	maxWaiting   int
	pollInterval time.Duration
	pool         *workerpool.Pool
	log          nlog.Logger
	stopped      bool
	stopCh       chan struct{}
}

// NewTimerManager creates a new timer manager. workers/maxWaiting/
// pollInterval size the dispatch pool Start() builds (spec.md §4.4's
// slot+waiting-list model, here sized from pkg/config.WorkerPoolConfig
// rather than hardcoded); maxWaiting<=0 means the waiting list is
// unbounded. log receives a warning for any callback the pool rejects.
func NewTimerManager(workers, maxWaiting int, pollInterval time.Duration, log nlog.Logger) *TimerManager {
	if log == nil {
		log = nlog.NopLogger{}
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Millisecond
	}
	tm := &TimerManager{
		heap:         make(timerHeap, 0),
		wakeup:       make(chan struct{}, 1),
		tasks:        make(map[string]*TimerTask),
		workers:      workers,
		maxWaiting:   maxWaiting,
		pollInterval: pollInterval,
		log:          log,
		stopCh:       make(chan struct{}),
	}
	heap.Init(&tm.heap)
	return tm
}

// Start starts the dispatch pool and the scheduler goroutine.
func (tm *TimerManager) Start() {
	tm.pool = workerpool.New(tm.workers, tm.maxWaiting, tm.pollInterval)
	go tm.run()
}

// Stop stops the scheduler and drains the dispatch pool.
func (tm *TimerManager) Stop() {
	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return
	}
	tm.stopped = true
	close(tm.stopCh)
	tm.mu.Unlock()

	tm.pool.Destroy()
}

// Schedule adds a new task to be executed at the specified time
func (tm *TimerManager) Schedule(id string, expiryAt time.Time, callback func()) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.stopped {
		return ErrManagerStopped
	}

	// Remove existing task with same ID if present
	if existing, ok := tm.tasks[id]; ok {
		heap.Remove(&tm.heap, existing.index)
		delete(tm.tasks, id)
	}

	task := &TimerTask{
		ID:       id,
		ExpiryAt: expiryAt,
		Callback: callback,
	}

	heap.Push(&tm.heap, task)
	tm.tasks[id] = task

	// Wake up the scheduler if this is the earliest task
	if tm.heap[0] == task {
		select {
		case tm.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Cancel removes a scheduled task
func (tm *TimerManager) Cancel(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	task, ok := tm.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&tm.heap, task.index)
	delete(tm.tasks, id)
	return true
}

// run is the main scheduler loop
func (tm *TimerManager) run() {
	for {
		tm.mu.Lock()

		if tm.stopped {
			tm.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if tm.heap.Len() == 0 {
			// No tasks, wait indefinitely
			waitDuration = 24 * time.Hour
		} else {
			// Calculate wait time until next task
			nextTask := tm.heap[0]
			waitDuration = time.Until(nextTask.ExpiryAt)

			if waitDuration <= 0 {
				// Task is ready to execute
				task := heap.Pop(&tm.heap).(*TimerTask)
				delete(tm.tasks, task.ID)

				if err := tm.pool.Submit(workerpool.Direct, task.Callback); err != nil {
					tm.log.Warnf("timer: dropping expired task %s: %v", task.ID, err)
				}

				tm.mu.Unlock()
				continue
			}
		}

		tm.mu.Unlock()

		// Wait for either timeout or wakeup signal
		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			// Time to check for expired tasks
		case <-tm.wakeup:
			// New task added or existing task updated
			timer.Stop()
		case <-tm.stopCh:
			timer.Stop()
			return
		}
	}
}

// Stats returns statistics about the timer manager
func (tm *TimerManager) Stats() TimerStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return TimerStats{
		ScheduledTasks: len(tm.tasks),
		Workers:        tm.workers,
	}
}

// TimerStats contains statistics about the timer manager
type TimerStats struct {
	ScheduledTasks int
	Workers        int
}

var (
	ErrManagerStopped = &TimerError{"timer manager is stopped"}
)

// TimerError represents a timer error
type TimerError struct {
	msg string
}

func (e *TimerError) Error() string {
	return e.msg
}
