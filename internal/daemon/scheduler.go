// Package daemon implements the regulator daemon and its task scheduler.
package daemon

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work run by the scheduler worker. ctx is canceled when
// the scheduler closes.
type Task func(ctx context.Context)

type scheduledTask struct {
	wake time.Time
	seq  uint64
	run  Task
}

// taskQueue orders tasks by wake instant, then by insertion order.
type taskQueue []*scheduledTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].wake.Equal(q[j].wake) {
		return q[i].seq < q[j].seq
	}
	return q[i].wake.Before(q[j].wake)
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*scheduledTask)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

// Scheduler is a delay queue served by a single worker goroutine. Tasks run
// one at a time in wake order; equal wake instants run first in, first out.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskQueue
	seq     uint64
	dropped bool
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// NewScheduler creates a scheduler and starts its worker.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return NewSchedulerWithClock(time.Now, logger)
}

// NewSchedulerWithClock creates a scheduler reading wake instants from now.
func NewSchedulerWithClock(now func() time.Time, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		now:    now,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.work()
	return s
}

// AddImmediateOperation queues task to run as soon as the worker is free.
func (s *Scheduler) AddImmediateOperation(task Task) {
	s.AddDelayedOperation(0, task)
}

// AddDelayedOperation queues task to run once delay has elapsed. Tasks added
// after Close are discarded.
func (s *Scheduler) AddDelayedOperation(delay time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped {
		return
	}
	if delay < 0 {
		delay = 0
	}
	s.seq++
	heap.Push(&s.queue, &scheduledTask{wake: s.now().Add(delay), seq: s.seq, run: task})
	s.cond.Broadcast()
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close drops every pending task, cancels the running one and waits for the
// worker to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.dropped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.dropped = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	<-s.done
	s.logger.Debug("scheduler closed")
}

func (s *Scheduler) work() {
	defer close(s.done)
	for {
		task := s.pick()
		if task == nil {
			return
		}
		task(s.ctx)
	}
}

// pick blocks until the earliest task is due or the scheduler is dropped.
// A timer re-arms the wait for the head's wake instant; enqueueing an
// earlier task broadcasts and the head is re-evaluated.
func (s *Scheduler) pick() Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.dropped {
			return nil
		}
		if len(s.queue) == 0 {
			s.cond.Wait()
			continue
		}

		head := s.queue[0]
		wait := head.wake.Sub(s.now())
		if wait <= 0 {
			heap.Pop(&s.queue)
			return head.run
		}

		timer := time.AfterFunc(wait, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		s.cond.Wait()
		timer.Stop()
	}
}
