package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orbitview/internal/transform"
)

// Job is one position computation for the worker pool. Index is opaque to the
// pool and is echoed back so the caller can restore its own ordering.
type Job struct {
	Index    int
	Elements ElementSet
}

// Result is the output of a single Job.
type Result struct {
	Index    int
	Position transform.Vec3
	Err      error
}

// WorkerPool manages a fixed number of goroutines for parallel position
// computation. Workers only call the Converter, which is read-only, so the
// pool never touches renderer state.
type WorkerPool struct {
	workers int
	conv    *Converter
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, conv *Converter, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		conv:    conv,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// Compute evaluates every job at t. The returned slice is indexed like jobs.
// A job that errors or panics yields a Result with Err set; other jobs are
// unaffected. Jobs not started before ctx is cancelled get ctx.Err().
func (wp *WorkerPool) Compute(ctx context.Context, jobs []Job, t time.Time) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := wp.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan int, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slot := range queue {
				results[slot] = wp.computeOne(jobs[slot], t)
			}
		}()
	}

	fed := 0
feed:
	for ; fed < len(jobs); fed++ {
		select {
		case queue <- fed:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	for i := fed; i < len(jobs); i++ {
		results[i] = Result{Index: jobs[i].Index, Err: ctx.Err()}
	}
	return results
}

// computeOne runs a single job, converting a panic in the model into an
// error so one bad record cannot take down the refresh.
func (wp *WorkerPool) computeOne(job Job, t time.Time) (res Result) {
	res.Index = job.Index
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Debug("recovered panic in position computation", "index", job.Index, "panic", r)
			res.Err = fmt.Errorf("%w: panic: %v", ErrPropagation, r)
		}
	}()
	res.Position, res.Err = wp.conv.Position(job.Elements, t)
	return res
}
