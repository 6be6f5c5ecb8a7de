package options

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// StarvationTimeout is how long a queued task may wait before its
// effective priority is elevated to the maximum (section 9's decorator
// composition note: "starvation prevention bound by a configurable
// timeout").
const StarvationTimeout = 5 * time.Second

type priorityTask struct {
	priority int
	enqueued time.Time
	run      func()
	index    int
}

func (t *priorityTask) effectivePriority(now time.Time) int {
	if now.Sub(t.enqueued) >= StarvationTimeout {
		return 100
	}
	return t.priority
}

// taskHeap is a max-heap by effective priority, ties broken by FIFO
// enqueue order.
type taskHeap struct {
	tasks []*priorityTask
	now   func() time.Time
}

func (h taskHeap) Len() int { return len(h.tasks) }
func (h taskHeap) Less(i, j int) bool {
	now := h.now()
	pi, pj := h.tasks[i].effectivePriority(now), h.tasks[j].effectivePriority(now)
	if pi != pj {
		return pi > pj
	}
	return h.tasks[i].enqueued.Before(h.tasks[j].enqueued)
}
func (h taskHeap) Swap(i, j int) {
	h.tasks[i], h.tasks[j] = h.tasks[j], h.tasks[i]
	h.tasks[i].index, h.tasks[j].index = i, j
}
func (h *taskHeap) Push(x any) {
	t := x.(*priorityTask)
	t.index = len(h.tasks)
	h.tasks = append(h.tasks, t)
}
func (h *taskHeap) Pop() any {
	old := h.tasks
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	h.tasks = old[:n-1]
	return t
}

// priorityScheduler is a bounded worker pool with a priority-aware
// ready queue (section 9, spec's decorator-composition note): each
// submission carries a numeric priority, higher-priority and
// longer-waiting tasks run first.
type priorityScheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	h       *taskHeap
	workers int
	started bool
}

func newPriorityScheduler(workers int) *priorityScheduler {
	if workers < 1 {
		workers = 1
	}
	s := &priorityScheduler{h: &taskHeap{now: time.Now}, workers: workers}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *priorityScheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for i := 0; i < s.workers; i++ {
		go s.worker()
	}
}

func (s *priorityScheduler) worker() {
	for {
		s.mu.Lock()
		for s.h.Len() == 0 {
			s.cond.Wait()
		}
		t := heap.Pop(s.h).(*priorityTask)
		s.mu.Unlock()
		t.run()
	}
}

// submit enqueues fn at the given priority and blocks the caller until
// it has run (or ctx is cancelled first, in which case fn may still run
// later but the caller stops waiting).
func (s *priorityScheduler) submit(ctx context.Context, priority int, fn func()) error {
	s.start()
	done := make(chan struct{})
	t := &priorityTask{priority: priority, enqueued: time.Now(), run: func() {
		defer close(done)
		fn()
	}}

	s.mu.Lock()
	heap.Push(s.h, t)
	s.cond.Signal()
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
