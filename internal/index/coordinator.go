// Package index drives the per-collection indexing pipeline: discovering
// changed files, chunking and embedding them, and persisting the result to
// the lexical and vector stores behind a single request-driven coordinator.
package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mcpcontext/browser/internal/errs"
	"github.com/mcpcontext/browser/internal/snapshot"
	"github.com/mcpcontext/browser/internal/telemetry"
)

// DefaultGlobalConcurrency bounds how many collections may run their
// pipeline at once, protecting shared embedder/provider rate limits.
const DefaultGlobalConcurrency = 2

// IndexOptions are the options accompanying a request_index call.
type IndexOptions struct {
	// Force cancels any already-Running task for the collection and queues
	// a fresh one, instead of rejecting with AlreadyRunning.
	Force bool
}

// IndexingResult is returned immediately by RequestIndex: either the
// request was queued, or it was rejected outright.
type IndexingResult struct {
	Queued    bool
	Rejection error
}

// collectionSlot is the coordinator's single-slot queue for one collection:
// at most one task is ever Queued or Running for it at a time.
type collectionSlot struct {
	mu       sync.Mutex
	progress *Progress
	cancel   context.CancelFunc
	deps     CollectionDeps
}

// Coordinator serializes indexing work per collection, enforces the
// per-collection single-slot queue and the cross-collection concurrency
// limit, and publishes status. This replaces the teacher's event-driven
// Coordinator.HandleEvents(watcher.FileEvent) design, which serialized work
// with a single project-wide mutex reacting to filesystem events; here
// requests are explicit request_index calls, one independent slot per
// collection, and a semaphore to bound total concurrent pipeline runs.
type Coordinator struct {
	sem     *semaphore.Weighted
	metrics *telemetry.Metrics

	mu      sync.Mutex
	slots   map[string]*collectionSlot
	running map[string]bool
}

// NewCoordinator returns a Coordinator with the given global concurrency
// limit. A limit of 0 uses DefaultGlobalConcurrency. metrics may be nil, in
// which case no telemetry is recorded.
func NewCoordinator(globalConcurrency int64, metrics *telemetry.Metrics) *Coordinator {
	if globalConcurrency <= 0 {
		globalConcurrency = DefaultGlobalConcurrency
	}
	return &Coordinator{
		sem:     semaphore.NewWeighted(globalConcurrency),
		metrics: metrics,
		slots:   make(map[string]*collectionSlot),
		running: make(map[string]bool),
	}
}

func (c *Coordinator) slotFor(collectionID string, deps CollectionDeps) *collectionSlot {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[collectionID]
	if !ok {
		slot = &collectionSlot{progress: NewProgress()}
		c.slots[collectionID] = slot
	}
	slot.deps = deps
	return slot
}

// RequestIndex implements request_index(collection_id, options). It either
// queues a pipeline run (returning Queued: true) or rejects the request,
// most commonly with AlreadyRunning when the collection has a run in
// flight and Force is false.
func (c *Coordinator) RequestIndex(ctx context.Context, deps CollectionDeps, opts IndexOptions) IndexingResult {
	slot := c.slotFor(deps.CollectionID, deps)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	status := slot.progress.Snapshot().Status
	if !status.IsTerminal() {
		if !opts.Force {
			return IndexingResult{Rejection: errs.AlreadyRunning(
				fmt.Sprintf("collection %s is already running", deps.CollectionID))}
		}
		if slot.cancel != nil {
			slot.cancel()
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	slot.cancel = cancel
	slot.progress.SetQueued()

	go c.runQueued(runCtx, slot, deps)

	return IndexingResult{Queued: true}
}

// runQueued waits for a global concurrency slot, then runs the pipeline,
// publishing Running/Succeeded/Failed transitions as it goes.
func (c *Coordinator) runQueued(ctx context.Context, slot *collectionSlot, deps CollectionDeps) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		slot.progress.SetFailed(err, true)
		return
	}
	defer c.sem.Release(1)

	slot.mu.Lock()
	slot.progress.SetRunning(PhaseDiscovering)
	slot.mu.Unlock()

	start := time.Now()
	run := newPipelineRun(deps, slot.progress)
	stats, err := run.run(ctx)
	elapsed := time.Since(start)

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if err != nil {
		cancelled := ctx.Err() != nil
		status := "failed"
		if cancelled {
			status = "cancelled"
		}
		if c.metrics != nil {
			c.metrics.ObserveIndexRun(status, elapsed.Seconds())
		}
		slot.progress.SetFailed(err, cancelled)
		return
	}
	stats.Duration = elapsed
	if c.metrics != nil {
		c.metrics.ObserveIndexRun("succeeded", elapsed.Seconds())
		c.metrics.AddFilesIndexed(deps.CollectionID, stats.Files)
		c.metrics.AddChunksEmitted(deps.CollectionID, stats.Chunks)
	}
	slot.progress.SetSucceeded(stats)
}

// Status implements status(collection_id). A collection never requested
// before reports Idle.
func (c *Coordinator) Status(collectionID string) Snapshot {
	c.mu.Lock()
	slot, ok := c.slots[collectionID]
	c.mu.Unlock()
	if !ok {
		return Snapshot{Status: StatusIdle}
	}
	return slot.progress.Snapshot()
}

// Cancel implements cancel(collection_id). Cancelling a collection with no
// task in flight is a no-op.
func (c *Coordinator) Cancel(collectionID string) {
	c.mu.Lock()
	slot, ok := c.slots[collectionID]
	c.mu.Unlock()
	if !ok {
		return
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.cancel != nil {
		slot.cancel()
	}
}

// Clear implements clear(collection_id): deletes the vector collection, the
// lexical index, and the manifest. The collection must not have a task
// Running; callers should Cancel and wait for the terminal state first.
func (c *Coordinator) Clear(ctx context.Context, deps CollectionDeps) error {
	c.mu.Lock()
	slot, ok := c.slots[deps.CollectionID]
	c.mu.Unlock()
	if ok {
		if status := slot.progress.Snapshot().Status; status == StatusRunning || status == StatusQueued {
			return errs.AlreadyRunning(fmt.Sprintf("collection %s is running; cancel it first", deps.CollectionID))
		}
	}

	bm25IDs, err := deps.BM25.AllIDs()
	if err != nil {
		return fmt.Errorf("list lexical ids: %w", err)
	}
	if len(bm25IDs) > 0 {
		if err := deps.BM25.Delete(ctx, bm25IDs); err != nil {
			return fmt.Errorf("clear lexical index: %w", err)
		}
	}

	vectorIDs := deps.Vector.AllIDs()
	if len(vectorIDs) > 0 {
		if err := deps.Vector.Delete(ctx, vectorIDs); err != nil {
			return fmt.Errorf("clear vector store: %w", err)
		}
	}

	if err := deps.Metadata.DeleteFilesByProject(ctx, deps.CollectionID); err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}

	if err := snapshot.Save(deps.DataDir, snapshot.New()); err != nil {
		return fmt.Errorf("clear manifest: %w", err)
	}

	c.mu.Lock()
	delete(c.slots, deps.CollectionID)
	c.mu.Unlock()
	return nil
}
