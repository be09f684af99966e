package tools

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolClosed       = errors.New("worker pool is closed")
	ErrSchedulerStopped = errors.New("scheduler is not running")
)

// Task is a unit of tool work.
type Task func(ctx context.Context) (any, error)

// Future is the pending result of a task. Sync and async dispatch both
// hand one back, so callers wait the same way regardless of the path.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run executes task, converting panics into errors that carry a stack.
func run(ctx context.Context, task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, errors.Errorf("tool panicked: %v", r)
		}
	}()
	return task(ctx)
}

type job struct {
	ctx    context.Context
	task   Task
	future *Future
}

// WorkerPool runs blocking tools on a fixed set of goroutines fed by a
// bounded queue.
type WorkerPool struct {
	jobs      chan job
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWorkerPool starts workers goroutines draining a queue of queueSize.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		jobs: make(chan job, queueSize),
		quit: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.future.resolve(run(j.ctx, j.task))
		case <-p.quit:
			return
		}
	}
}

// Submit queues task, blocking while the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, task Task) (*Future, error) {
	select {
	case <-p.quit:
		return nil, ErrPoolClosed
	default:
	}

	f := newFuture()
	select {
	case p.jobs <- job{ctx: ctx, task: task, future: f}:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolClosed
	}
}

// Close stops the workers. Queued tasks that never ran fail with
// ErrPoolClosed.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
		for {
			select {
			case j := <-p.jobs:
				j.future.resolve(nil, ErrPoolClosed)
			default:
				return
			}
		}
	})
}

// Scheduler drives asynchronous tools.
type Scheduler interface {
	// Go starts fn, reporting false if the scheduler cannot accept work.
	Go(fn func()) bool
	// Running reports whether the scheduler is currently driving work.
	Running() bool
}

// Loop is a long-lived Scheduler shared by concurrent conversations.
// Tasks are accepted only while Run is active.
type Loop struct {
	tasks chan func()
	limit int
	wg    sync.WaitGroup

	mu   sync.Mutex
	stop chan struct{}
}

// NewLoop creates a loop that runs at most limit tasks at once.
func NewLoop(limit int) *Loop {
	if limit < 1 {
		limit = 1
	}
	return &Loop{
		tasks: make(chan func()),
		limit: limit,
	}
}

// Run drives submitted tasks until ctx is done, then waits for the tasks
// already started.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.stop != nil {
		l.mu.Unlock()
		return errors.New("loop is already running")
	}
	stop := make(chan struct{})
	l.stop = stop
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		close(stop)
		l.stop = nil
		l.mu.Unlock()
		l.wg.Wait()
	}()

	sem := make(chan struct{}, l.limit)
	for {
		select {
		case fn := <-l.tasks:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// the submitter is already waiting on fn
				l.wg.Add(1)
				go func() {
					defer l.wg.Done()
					fn()
				}()
				return ctx.Err()
			}
			l.wg.Add(1)
			go func() {
				defer func() {
					<-sem
					l.wg.Done()
				}()
				fn()
			}()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) Go(fn func()) bool {
	l.mu.Lock()
	stop := l.stop
	l.mu.Unlock()
	if stop == nil {
		return false
	}
	select {
	case l.tasks <- fn:
		return true
	case <-stop:
		return false
	}
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}

// privateScheduler is created for a single async call when no running
// scheduler was supplied, and discarded afterwards.
type privateScheduler struct {
	group errgroup.Group
}

func (s *privateScheduler) Go(fn func()) bool {
	s.group.Go(func() error {
		fn()
		return nil
	})
	return true
}

func (s *privateScheduler) Running() bool {
	return true
}

func (s *privateScheduler) wait() {
	_ = s.group.Wait()
}

// schedule starts task on sched and returns its future.
func schedule(ctx context.Context, sched Scheduler, task Task) (*Future, error) {
	f := newFuture()
	if !sched.Go(func() { f.resolve(run(ctx, task)) }) {
		return nil, ErrSchedulerStopped
	}
	return f, nil
}
