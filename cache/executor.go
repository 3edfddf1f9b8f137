package cache

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"
)

// Executor runs background cache work (refreshes).
type Executor interface {
	// Submit schedules task without blocking. It reports false when the task
	// was refused (executor closed or saturated).
	Submit(task func(ctx context.Context)) bool

	// Close stops accepting tasks. It does not wait for running tasks.
	Close()
}

// GoExecutor runs every task on its own goroutine. It is shared by every
// cache that does not ask for a dedicated executor.
type GoExecutor struct {
	Logger *slog.Logger
}

// Submit starts task on a new goroutine.
func (g GoExecutor) Submit(task func(ctx context.Context)) bool {
	go runTask(context.Background(), g.Logger, task)
	return true
}

// Close is a no-op.
func (GoExecutor) Close() {}

// ExecutorName returns the name of the dedicated executor of a cache.
func ExecutorName(cache string) string {
	return cache + "-cache-executor"
}

// Pool is a dedicated executor with a bounded number of named workers.
// Workers are started on demand, named <pool>-1, <pool>-2, ... in the order
// they are spawned, and exit after being idle for the keep-alive period.
// Each worker carries its name as the "worker" pprof label.
type Pool struct {
	name      string
	size      int
	keepAlive time.Duration
	logger    *slog.Logger

	tasks chan func(context.Context)
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	workers int
	idle    int
	spawned int
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolSize caps the number of concurrent workers.
func WithPoolSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithQueueSize sets how many tasks may wait for a worker.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.tasks = make(chan func(context.Context), n)
		}
	}
}

// WithKeepAlive sets how long an idle worker waits before exiting.
func WithKeepAlive(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.keepAlive = d
		}
	}
}

// WithPoolLogger sets the logger used to report panicking tasks.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates an idle pool. No worker runs until the first Submit.
func NewPool(name string, opts ...PoolOption) *Pool {
	p := &Pool{
		name:      name,
		size:      max(2, runtime.GOMAXPROCS(0)),
		keepAlive: 30 * time.Second,
		logger:    slog.Default(),
		tasks:     make(chan func(context.Context), 256),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Spawned returns how many workers have been started so far.
func (p *Pool) Spawned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawned
}

// Submit hands task to an idle worker, starts a new worker, or queues it, in
// that order of preference. It never blocks.
func (p *Pool) Submit(task func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if len(p.tasks) >= p.idle && p.workers < p.size {
		p.workers++
		p.spawned++
		go p.work(fmt.Sprintf("%s-%d", p.name, p.spawned), task)
		return true
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops the pool. Queued tasks are dropped and running tasks are left
// to finish on their own.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}

func (p *Pool) work(name string, first func(context.Context)) {
	labels := pprof.Labels("executor", p.name, "worker", name)
	pprof.Do(context.Background(), labels, func(ctx context.Context) {
		runTask(ctx, p.logger, first)

		timer := time.NewTimer(p.keepAlive)
		defer timer.Stop()
		for {
			p.mu.Lock()
			p.idle++
			p.mu.Unlock()

			select {
			case task := <-p.tasks:
				p.mu.Lock()
				p.idle--
				p.mu.Unlock()
				runTask(ctx, p.logger, task)
				timer.Reset(p.keepAlive)

			case <-timer.C:
				p.mu.Lock()
				p.idle--
				if len(p.tasks) > 0 {
					p.mu.Unlock()
					timer.Reset(p.keepAlive)
					continue
				}
				p.workers--
				p.mu.Unlock()
				return

			case <-p.done:
				p.mu.Lock()
				p.idle--
				p.workers--
				p.mu.Unlock()
				return
			}
		}
	})
}

func runTask(ctx context.Context, logger *slog.Logger, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("cache: background task panicked", slog.Any("panic", r))
		}
	}()
	task(ctx)
}
