package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
)

// runConcurrent executes independent branches on a pool of workers. A node
// is queued once every member upstream has reached a terminal state, and
// its hooks have fired, so dependents always observe finished results.
func (e *Executor) runConcurrent(ctx context.Context, p *plan) {
	logger := ctxlog.FromContext(ctx)

	depCount := make(map[string]*atomic.Int32, len(p.order))
	for _, id := range p.order {
		c := &atomic.Int32{}
		for _, up := range p.graph.Upstream(id) {
			if p.graph.Has(up) {
				c.Add(1)
			}
		}
		depCount[id] = c
	}

	readyChan := make(chan string, len(p.order))
	var wg sync.WaitGroup
	wg.Add(len(p.order))

	logger.Debug("Finding root nodes...")
	for _, id := range p.order {
		if depCount[id].Load() == 0 {
			logger.Debug("Found root node.", "nodeID", id)
			readyChan <- id
		}
	}

	logger.Debug("Starting worker pool.", "workers", e.workers)
	for i := 0; i < e.workers; i++ {
		go e.worker(ctx, p, readyChan, depCount, &wg, i)
	}

	wg.Wait()
	close(readyChan)
	logger.Debug("All nodes completed.")
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, p *plan, readyChan chan string, depCount map[string]*atomic.Int32, wg *sync.WaitGroup, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for id := range readyChan {
		logger.Debug("Worker picked up node for execution.", "workerID", workerID, "nodeID", id)
		e.execute(ctx, p, id)

		for _, dependent := range p.graph.Downstream(id) {
			if depCount[dependent].Add(-1) == 0 {
				logger.Debug("Unlocking dependent node.", "nodeID", id, "dependentID", dependent)
				readyChan <- dependent
			}
		}
		wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
