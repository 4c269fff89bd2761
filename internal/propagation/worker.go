package propagation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aster/astergo/internal/elements"
	"github.com/aster/astergo/internal/kepler"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	body elements.Body
	jd   float64 // target Julian Date, precomputed once per batch
}

// propagateResult is the output of a single body propagation.
type propagateResult struct {
	position BodyPosition
	err      error
	id       string
}

// WorkerPool manages a fixed number of goroutines for parallel orbit propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates all bodies to the target Julian Date using the
// worker pool. Returns positions for all bodies that succeeded. Bodies whose
// elements carry no epoch are logged and skipped.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, bodies []elements.Body, jd float64) ([]BodyPosition, int, int) {
	if len(bodies) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := propagateSingle(job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for _, body := range bodies {
			job := propagateJob{body: body, jd: jd}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results.
	positions := make([]BodyPosition, 0, len(bodies))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"body_id", result.id,
				"error", result.err,
			)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}

	return positions, successCount, errorCount
}

// propagateSingle computes one body's heliocentric position at the job's
// Julian Date.
func propagateSingle(job propagateJob) propagateResult {
	p, err := kepler.PositionAt(job.body.Elements, job.jd)
	if err != nil {
		return propagateResult{id: job.body.ID, err: err}
	}

	return propagateResult{
		id: job.body.ID,
		position: BodyPosition{
			ID:       job.body.ID,
			Position: [3]float64{p.X, p.Y, p.Z},
		},
	}
}
