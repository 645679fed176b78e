// Package pool provides a dynamically-scaling worker pool used to score
// best_split candidate expressions concurrently while compiling a decision
// DAG node with many ready candidates (see dispatch.WithCompilePool).
// It is adapted from a miniKanren goal-evaluation worker pool; the scaling
// and statistics machinery carries over unchanged, repurposed for
// compilation tasks instead of goal evaluation.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolShutdown is returned by Submit once Shutdown has been called.
var ErrPoolShutdown = errors.New("pool: shut down")

// Pool runs submitted tasks across a dynamically-sized set of goroutines,
// scaling worker count up under queue pressure and back down once it
// subsides.
type Pool struct {
	maxWorkers     int
	minWorkers     int
	currentWorkers int
	taskChan       chan func()
	workerWg       sync.WaitGroup
	shutdownChan   chan struct{}
	scaleChan      chan int
	once           sync.Once
	mu             sync.RWMutex

	scaleUpThreshold   int
	scaleDownThreshold int
	scaleCheckInterval time.Duration
	scaleCooldown      time.Duration
	lastScaleTime      time.Time

	stats *Stats
}

// Config tunes a Pool's dynamic scaling behavior. Zero values fall back to
// sensible defaults scaled from maxWorkers.
type Config struct {
	ScaleUpThreshold   int
	ScaleDownThreshold int
	ScaleCheckInterval time.Duration
	ScaleCooldown      time.Duration
}

// New creates a pool that scales between minWorkers and maxWorkers
// goroutines. maxWorkers <= 0 defaults to runtime.NumCPU().
func New(maxWorkers, minWorkers int, config Config) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	if minWorkers <= 0 {
		minWorkers = 1
	}
	if minWorkers > maxWorkers {
		minWorkers = maxWorkers
	}
	if config.ScaleUpThreshold <= 0 {
		config.ScaleUpThreshold = maxWorkers * 2
	}
	if config.ScaleDownThreshold <= 0 {
		config.ScaleDownThreshold = maxWorkers / 2
		if config.ScaleDownThreshold <= 0 {
			config.ScaleDownThreshold = 1
		}
	}
	if config.ScaleCheckInterval <= 0 {
		config.ScaleCheckInterval = 100 * time.Millisecond
	}
	if config.ScaleCooldown <= 0 {
		config.ScaleCooldown = 500 * time.Millisecond
	}

	p := &Pool{
		maxWorkers:         maxWorkers,
		minWorkers:         minWorkers,
		currentWorkers:     minWorkers,
		taskChan:           make(chan func(), maxWorkers*4),
		shutdownChan:       make(chan struct{}),
		scaleChan:          make(chan int, 1),
		scaleUpThreshold:   config.ScaleUpThreshold,
		scaleDownThreshold: config.ScaleDownThreshold,
		scaleCheckInterval: config.ScaleCheckInterval,
		scaleCooldown:      config.ScaleCooldown,
		lastScaleTime:      time.Now(),
		stats:              newStats(),
	}
	for i := 0; i < minWorkers; i++ {
		p.workerWg.Add(1)
		go p.worker()
	}
	go p.scalingMonitor()
	return p
}

func (p *Pool) worker() {
	defer p.workerWg.Done()
	for {
		select {
		case task, ok := <-p.taskChan:
			if !ok {
				return
			}
			p.runTask(task)
		case <-p.shutdownChan:
			return
		}
	}
}

func (p *Pool) runTask(task func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.stats.recordFailed(fmt.Errorf("pool: task panicked: %v", r))
		}
	}()
	task()
	p.stats.recordCompleted(time.Since(start))
}

// Submit enqueues task, blocking until a slot is free, ctx is done, or the
// pool is shut down.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.stats.recordSubmitted()
	select {
	case <-p.shutdownChan:
		p.stats.recordCancelled()
		return ErrPoolShutdown
	default:
	}
	select {
	case p.taskChan <- task:
		p.stats.recordQueueDepth(len(p.taskChan))
		return nil
	case <-ctx.Done():
		p.stats.recordCancelled()
		return ctx.Err()
	case <-p.shutdownChan:
		p.stats.recordCancelled()
		return ErrPoolShutdown
	}
}

// SubmitAll splits items across the pool and blocks until every fn(item)
// call has completed, collecting the first error encountered (if any). If a
// Submit itself fails, SubmitAll returns that error at once, without waiting
// for the items already handed to the pool —
// the pattern pickSplit uses to score several candidate split expressions
// concurrently when compiling a DAG node with many ready candidates.
func SubmitAll[T any](ctx context.Context, p *Pool, items []T, fn func(T) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(items))
	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		if err := p.Submit(ctx, func() {
			defer wg.Done()
			errs[i] = fn(item)
		}); err != nil {
			wg.Done()
			return err
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Shutdown waits for in-flight tasks to finish, then stops every worker.
// Safe to call more than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.shutdownChan)
		close(p.taskChan)
		p.workerWg.Wait()
		p.stats.finalize()
	})
}

func (p *Pool) scalingMonitor() {
	ticker := time.NewTicker(p.scaleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.checkScaling()
		case n := <-p.scaleChan:
			p.adjustWorkers(n)
		case <-p.shutdownChan:
			return
		}
	}
}

func (p *Pool) checkScaling() {
	p.mu.RLock()
	if time.Since(p.lastScaleTime) < p.scaleCooldown {
		p.mu.RUnlock()
		return
	}
	current, max, min := p.currentWorkers, p.maxWorkers, p.minWorkers
	up, down := p.scaleUpThreshold, p.scaleDownThreshold
	p.mu.RUnlock()

	depth := len(p.taskChan)
	switch {
	case depth > up && current < max:
		p.requestScale(current + 1)
	case depth < down && current > min:
		p.requestScale(current - 1)
	}
}

func (p *Pool) requestScale(target int) {
	select {
	case p.scaleChan <- target:
	default:
	}
}

func (p *Pool) adjustWorkers(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.currentWorkers
	if target == current {
		return
	}
	if target > current {
		for i := current; i < target; i++ {
			p.workerWg.Add(1)
			go p.worker()
		}
		p.stats.recordScaleUp()
	} else {
		p.stats.recordScaleDown()
	}
	p.currentWorkers = target
	p.lastScaleTime = time.Now()
}

// WorkerCount reports the current number of live worker goroutines.
func (p *Pool) WorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentWorkers
}

// QueueDepth reports the number of tasks currently waiting for a worker.
func (p *Pool) QueueDepth() int { return len(p.taskChan) }

// Stats returns the pool's running execution statistics.
func (p *Pool) Stats() *Stats { return p.stats }

// Stats tracks task throughput, latency, and scaling events for a Pool.
type Stats struct {
	submitted  int64
	completed  int64
	failed     int64
	cancelled  int64
	scaleUps   int64
	scaleDowns int64

	mu          sync.Mutex
	totalLatency time.Duration
	maxLatency   time.Duration
}

func newStats() *Stats { return &Stats{} }

func (s *Stats) recordSubmitted() { atomic.AddInt64(&s.submitted, 1) }
func (s *Stats) recordCancelled() { atomic.AddInt64(&s.cancelled, 1) }
func (s *Stats) recordScaleUp()   { atomic.AddInt64(&s.scaleUps, 1) }
func (s *Stats) recordScaleDown() { atomic.AddInt64(&s.scaleDowns, 1) }
func (s *Stats) recordQueueDepth(int) {}

func (s *Stats) recordCompleted(d time.Duration) {
	atomic.AddInt64(&s.completed, 1)
	s.mu.Lock()
	s.totalLatency += d
	if d > s.maxLatency {
		s.maxLatency = d
	}
	s.mu.Unlock()
}

func (s *Stats) recordFailed(error) { atomic.AddInt64(&s.failed, 1) }
func (s *Stats) finalize()          {}

// Snapshot is a point-in-time, race-free copy of a Stats.
type Snapshot struct {
	Submitted, Completed, Failed, Cancelled int64
	ScaleUps, ScaleDowns                    int64
	MeanLatency, MaxLatency                 time.Duration
}

// Snapshot copies out the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed := atomic.LoadInt64(&s.completed)
	var mean time.Duration
	if completed > 0 {
		mean = s.totalLatency / time.Duration(completed)
	}
	return Snapshot{
		Submitted:  atomic.LoadInt64(&s.submitted),
		Completed:  completed,
		Failed:     atomic.LoadInt64(&s.failed),
		Cancelled:  atomic.LoadInt64(&s.cancelled),
		ScaleUps:   atomic.LoadInt64(&s.scaleUps),
		ScaleDowns: atomic.LoadInt64(&s.scaleDowns),
		MeanLatency: mean,
		MaxLatency: s.maxLatency,
	}
}
