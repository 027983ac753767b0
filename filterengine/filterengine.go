// Package filterengine runs a compiled predicate over an entire indexed
// log file in parallel, one job per chunk. Jobs read their chunk's
// bytes directly through the loader's uncached path rather than the LRU
// chunk cache: a filter pass typically visits every chunk exactly once,
// and routing that through the cache would just evict chunks a
// subsequent interactive page-through would have wanted to keep warm.
package filterengine

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/opnsense-tools/fwlogstore/chunkloader"
	"github.com/opnsense-tools/fwlogstore/predicate"
	"github.com/opnsense-tools/fwlogstore/record"
)

// ErrCancelled is returned by Filter when cancel fired before the pass
// completed. Callers distinguish this from a chunk read failure via
// errors.Is, since both surface through the same return value.
var ErrCancelled = errors.New("filterengine: filter pass cancelled")

// maxWorkers caps concurrency the same way the teacher's request
// filtering does: beyond a point, more goroutines just add contention
// for the same I/O bandwidth.
const maxWorkers = 8

// Progress reports how many of the totalJobs chunk jobs have finished.
// It is invoked from a single goroutine, so implementations need not be
// safe for concurrent use.
type Progress func(completedJobs, totalJobs int)

// Engine applies a predicate across every chunk of a loader's index.
type Engine struct {
	loader      *chunkloader.Loader
	workerCount int
}

// New creates an Engine with an explicit worker count. A non-positive
// workerCount requests the default: runtime.NumCPU(), capped at
// maxWorkers.
func New(loader *chunkloader.Loader, workerCount int) *Engine {
	return &Engine{loader: loader, workerCount: workerCount}
}

func (e *Engine) resolveWorkerCount(totalJobs int) int {
	workers := e.workerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > maxWorkers {
			workers = maxWorkers
		}
	}
	// A handful of chunks doesn't justify a larger pool than jobs to run;
	// this is also the "single worker" fallback for small files.
	if workers > totalJobs {
		workers = totalJobs
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

type jobResult struct {
	chunkID int
	matches []record.Record
	err     error
}

// Filter evaluates pred against every record in the store, returning
// matches in original line order regardless of how many workers ran:
// each worker's output lands in the slot for its chunk ID, and the
// final concatenation walks chunk IDs in order, so ordering is
// structural rather than a separate sort pass.
//
// cancel, when non-nil, is polled once per job; a closed cancel channel
// causes Filter to return an error once the in-flight jobs drain.
func (e *Engine) Filter(pred *predicate.Predicate, resolveLabel predicate.LabelResolver, progress Progress, cancel <-chan struct{}) ([]record.Record, error) {
	totalJobs := e.loader.ChunkCount()
	if totalJobs == 0 {
		return nil, nil
	}

	workers := e.resolveWorkerCount(totalJobs)

	jobs := make(chan int, totalJobs)
	results := make(chan jobResult, workers*2)

	var wg sync.WaitGroup
	var cancelled atomic.Bool

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunkID := range jobs {
				if cancel != nil {
					select {
					case <-cancel:
						cancelled.Store(true)
						continue
					default:
					}
				}

				start, end, ok := e.loader.ChunkBounds(chunkID)
				if !ok {
					results <- jobResult{chunkID: chunkID, err: fmt.Errorf("filterengine: chunk %d out of range", chunkID)}
					continue
				}

				recs, err := e.loader.LoadRange(start, end)
				if err != nil {
					results <- jobResult{chunkID: chunkID, err: err}
					continue
				}

				var matches []record.Record
				for _, r := range recs {
					if pred.Evaluate(r, resolveLabel) {
						matches = append(matches, r)
					}
				}
				results <- jobResult{chunkID: chunkID, matches: matches}
			}
		}()
	}

	slots := make([][]record.Record, totalJobs)
	var firstErr error
	var collectorWG sync.WaitGroup
	collectorWG.Add(1)
	go func() {
		defer collectorWG.Done()
		completed := 0
		for res := range results {
			completed++
			if res.err != nil && firstErr == nil {
				firstErr = res.err
			} else if res.err == nil {
				slots[res.chunkID] = res.matches
			}
			if progress != nil {
				progress(completed, totalJobs)
			}
		}
	}()

	for chunkID := 0; chunkID < totalJobs; chunkID++ {
		jobs <- chunkID
	}
	close(jobs)

	wg.Wait()
	close(results)
	collectorWG.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if cancelled.Load() {
		return nil, ErrCancelled
	}

	total := 0
	for _, m := range slots {
		total += len(m)
	}
	out := make([]record.Record, 0, total)
	for _, m := range slots {
		out = append(out, m...)
	}
	return out, nil
}
