package embedpipeline

import "time"

// BatchOptions configures how items are grouped into embedding batches.
type BatchOptions struct {
	// Size is the target number of items per batch (default: DefaultBatchSize).
	Size int

	// MaxLatency bounds how long a partially-filled batch waits for more
	// items before it is flushed anyway (default: 200ms).
	MaxLatency time.Duration

	// QueueDepth is the number of batches allowed in flight before the
	// chunker blocks submitting new items (default: 4).
	QueueDepth int
}

// DefaultBatchOptions returns sensible defaults for batch accumulation.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Size:       DefaultBatchSize,
		MaxLatency: 200 * time.Millisecond,
		QueueDepth: 4,
	}
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.Size <= 0 {
		o.Size = DefaultBatchSize
	}
	if o.Size > MaxBatchSize {
		o.Size = MaxBatchSize
	}
	if o.MaxLatency <= 0 {
		o.MaxLatency = 200 * time.Millisecond
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 4
	}
	return o
}

// Item is a single unit submitted to a Batcher, pairing an identifier with
// the text to embed.
type Item struct {
	ID   string
	Text string
}

// Batch is a group of items accumulated by size or max latency, whichever
// comes first.
type Batch struct {
	Items []Item
}

// Batcher accumulates Items submitted via Submit into Batches, flushing a
// batch when it reaches the configured Size or when MaxLatency elapses since
// the batch's first item, whichever comes first. Submit blocks once
// QueueDepth batches are already queued for consumption, giving the
// pipeline's chunker stage backpressure instead of unbounded buffering.
type Batcher struct {
	opts    BatchOptions
	in      chan Item
	out     chan Batch
	closeCh chan struct{}
	done    chan struct{}
}

// NewBatcher starts a Batcher's background accumulation loop. Call Submit to
// feed items, Batches to read flushed batches, and Close once no more items
// will be submitted (Batches closes after the final partial batch flushes).
func NewBatcher(opts BatchOptions) *Batcher {
	opts = opts.withDefaults()
	b := &Batcher{
		opts:    opts,
		in:      make(chan Item),
		out:     make(chan Batch, opts.QueueDepth),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Submit adds an item to the current batch. It blocks if the output queue
// already holds QueueDepth batches awaiting consumption.
func (b *Batcher) Submit(item Item) {
	select {
	case b.in <- item:
	case <-b.closeCh:
	}
}

// Close signals that no further items will be submitted and waits for the
// final partial batch (if any) to flush.
func (b *Batcher) Close() {
	close(b.closeCh)
	<-b.done
}

// Batches returns the channel of flushed batches. It closes once Close has
// been called and the final batch has been flushed.
func (b *Batcher) Batches() <-chan Batch {
	return b.out
}

func (b *Batcher) run() {
	defer close(b.out)
	defer close(b.done)

	var current []Item
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(current) == 0 {
			return
		}
		b.out <- Batch{Items: current}
		current = nil
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case item := <-b.in:
			current = append(current, item)
			if len(current) == 1 {
				timer = time.NewTimer(b.opts.MaxLatency)
				timerC = timer.C
			}
			if len(current) >= b.opts.Size {
				flush()
			}
		case <-timerC:
			flush()
		case <-b.closeCh:
			flush()
			return
		}
	}
}
