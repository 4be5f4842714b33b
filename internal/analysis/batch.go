package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// PoolMetrics counts the outcomes of batch analyses.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("analysis pool is shut down")

// Pool bounds the number of analyses running at once.
type Pool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics PoolMetrics
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
}

// NewPool creates a pool running at most size analyses concurrently.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
}

// Submit runs fn on the pool. It blocks while the pool is full and honors
// ctx cancellation while waiting for a slot.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// wg.Add must happen under the lock so Shutdown cannot miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.Active, 1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&p.metrics.Panics, 1)
				atomic.AddInt64(&p.metrics.Failed, 1)
			}
			atomic.AddInt64(&p.metrics.Active, -1)
			<-p.sem
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			atomic.AddInt64(&p.metrics.Failed, 1)
		} else {
			atomic.AddInt64(&p.metrics.Completed, 1)
		}
	}()
	return nil
}

// Wait blocks until all submitted work completes.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown rejects new work and waits for running analyses.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
	}
}

// BatchResult is the outcome of analyzing one file.
type BatchResult struct {
	Path   string
	Raw    []byte
	Report *Report
	Err    error
}

// AnalyzeFiles analyzes every path with at most concurrency analyses in
// flight. Results keep the order of paths; a failing file never stops the
// others, and an analysis that panics is reported through its result's Err.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string, concurrency int) []BatchResult {
	results := make([]BatchResult, len(paths))
	pool := NewPool(concurrency)
	defer pool.Shutdown()

	for i, path := range paths {
		results[i].Path = path
		err := pool.Submit(ctx, func(ctx context.Context) error {
			defer func() {
				if r := recover(); r != nil {
					results[i].Report = nil
					results[i].Err = fmt.Errorf("analysis panicked: %v", r)
					panic(r)
				}
			}()
			raw, err := os.ReadFile(path)
			if err != nil {
				results[i].Err = err
				return err
			}
			results[i].Raw = raw
			results[i].Report, results[i].Err = a.AnalyzeJSON(ctx, raw)
			return results[i].Err
		})
		if err != nil {
			results[i].Err = err
		}
	}
	pool.Wait()
	return results
}
