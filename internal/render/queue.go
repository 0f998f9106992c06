package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"cvpolish-core/internal/metrics"

	"go.uber.org/zap"
)

// DefaultRenderTimeout is the hard per-task rasterization deadline.
const DefaultRenderTimeout = 30 * time.Second

// Task priorities. Interactive requests outrank viewport refreshes;
// preloads run at negative priority proportional to distance.
const (
	PriorityInteractive = 100
	PriorityVisible     = 10
)

// renderTask is one queued rasterization. Its ctx is the cancellation
// token of the requester that created it; done closes when the task
// reaches a terminal state (cached, aborted or failed).
type renderTask struct {
	pageNumber int
	scale      float64
	priority   int
	seq        uint64
	ctx        context.Context
	done       chan struct{}
	err        error
}

// Queue serializes page rasterization through a single worker while
// callers express urgency via priorities. Exactly one render executes
// at a time: concurrent rasterization is resource-heavy and buys little
// over a prioritized single-flight queue when results are cached.
// Duplicate requests for the same (page, scale) join the pending task.
type Queue struct {
	mu         sync.Mutex
	rasterizer Rasterizer
	cache      *PageCache
	logger     *zap.Logger
	timeout    time.Duration

	doc     Document
	pending []*renderTask
	byKey   map[string]*renderTask
	seq     uint64

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewQueue creates the render queue and starts its worker.
func NewQueue(r Rasterizer, cache *PageCache, logger *zap.Logger, timeout time.Duration) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	q := &Queue{
		rasterizer: r,
		cache:      cache,
		logger:     logger,
		timeout:    timeout,
		byKey:      make(map[string]*renderTask),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	go q.run()
	return q
}

// SetDocument points the queue at a new document and aborts any work
// queued against the previous one.
func (q *Queue) SetDocument(doc Document) {
	q.mu.Lock()
	q.doc = doc
	q.mu.Unlock()
	q.Flush()
}

// Enqueue inserts a render task, or joins the already-pending task for
// the same (page, scale). A joined task keeps the higher of the two
// priorities.
func (q *Queue) Enqueue(ctx context.Context, pageNumber int, scale float64, priority int) *renderTask {
	key := pageKey(pageNumber, scale)

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byKey[key]; ok {
		if priority > existing.priority {
			existing.priority = priority
		}
		return existing
	}

	q.seq++
	t := &renderTask{
		pageNumber: pageNumber,
		scale:      scale,
		priority:   priority,
		seq:        q.seq,
		ctx:        ctx,
		done:       make(chan struct{}),
	}
	q.pending = append(q.pending, t)
	q.byKey[key] = t
	metrics.RenderQueueDepth.Set(float64(len(q.pending)))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return t
}

// Flush aborts every queued task. Running work is left to its own
// cancellation; waiters see ErrAborted.
func (q *Queue) Flush() {
	q.mu.Lock()
	flushed := q.pending
	q.pending = nil
	for _, t := range flushed {
		delete(q.byKey, pageKey(t.pageNumber, t.scale))
	}
	metrics.RenderQueueDepth.Set(0)
	q.mu.Unlock()

	for _, t := range flushed {
		t.err = ErrAborted
		close(t.done)
	}
}

// Close stops the worker after flushing queued tasks.
func (q *Queue) Close() {
	q.Flush()
	q.stopOnce.Do(func() { close(q.stop) })
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) run() {
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
			for {
				t := q.pop()
				if t == nil {
					break
				}
				q.execute(t)
			}
		}
	}
}

// pop removes the highest-priority task; equal priorities dequeue FIFO.
func (q *Queue) pop() *renderTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(q.pending); i++ {
		p, b := q.pending[i], q.pending[best]
		if p.priority > b.priority || (p.priority == b.priority && p.seq < b.seq) {
			best = i
		}
	}

	t := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	metrics.RenderQueueDepth.Set(float64(len(q.pending)))
	// byKey keeps the entry until the task finishes so late requesters
	// still join the running render.
	return t
}

func (q *Queue) execute(t *renderTask) {
	// Cancelled before it ever ran: skip without rendering.
	if t.ctx.Err() != nil {
		q.finish(t, ErrAborted)
		q.logger.Debug("render task cancelled before start",
			zap.Int("page", t.pageNumber),
			zap.Float64("scale", t.scale),
		)
		return
	}

	q.mu.Lock()
	doc := q.doc
	q.mu.Unlock()

	rctx, cancel := context.WithTimeout(t.ctx, q.timeout)
	defer cancel()

	start := time.Now()
	bitmap, err := q.rasterizer.RenderPage(rctx, doc, t.pageNumber, t.scale)
	duration := time.Since(start)

	if err != nil {
		// Caller cancellation is expected control flow; nothing is
		// cached and nothing is reported as a failure.
		if t.ctx.Err() != nil {
			q.finish(t, ErrAborted)
			q.logger.Debug("render task aborted",
				zap.Int("page", t.pageNumber),
				zap.Duration("duration", duration),
			)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.New("render: rasterization timed out")
		}
		q.finish(t, err)
		// Non-fatal: the page may be retried on next visibility.
		q.logger.Warn("render task failed",
			zap.Int("page", t.pageNumber),
			zap.Float64("scale", t.scale),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	q.cache.Put(t.pageNumber, t.scale, bitmap)
	metrics.RenderDurationSeconds.Observe(duration.Seconds())
	q.finish(t, nil)

	q.logger.Debug("render task cached",
		zap.Int("page", t.pageNumber),
		zap.Float64("scale", t.scale),
		zap.Duration("duration", duration),
	)
}

func (q *Queue) finish(t *renderTask, err error) {
	q.mu.Lock()
	if q.byKey[pageKey(t.pageNumber, t.scale)] == t {
		delete(q.byKey, pageKey(t.pageNumber, t.scale))
	}
	q.mu.Unlock()

	t.err = err
	close(t.done)
}
