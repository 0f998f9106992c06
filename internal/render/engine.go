package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configure the engine; zero values pick the defaults.
type Options struct {
	PageCacheSize int
	RenderTimeout time.Duration
}

// Stats is a point-in-time snapshot of engine state.
type Stats struct {
	CachedPages int     `json:"cached_pages"`
	QueueDepth  int     `json:"queue_depth"`
	CacheHits   uint64  `json:"cache_hits"`
	CacheMisses uint64  `json:"cache_misses"`
	Scale       float64 `json:"scale"`
	TotalPages  int     `json:"total_pages"`
}

// Engine ties the page cache, the virtual scroller and the render queue
// together behind the interface the UI layer drives: feed it scroll
// positions, ask it for page bitmaps, change zoom.
type Engine struct {
	mu              sync.Mutex
	cache           *PageCache
	scroller        *Scroller
	queue           *Queue
	logger          *zap.Logger
	doc             Document
	scale           float64
	containerHeight float64
	initialized     bool

	// background context for fire-and-forget renders (viewport refresh,
	// preload); cancelled on Reset so abandoned work stops promptly.
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// NewEngine creates an engine over the given rasterizer and starts the
// render worker.
func NewEngine(r Rasterizer, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := NewPageCache(opts.PageCacheSize)
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Engine{
		cache:    cache,
		scroller: NewScroller(),
		queue:    NewQueue(r, cache, logger, opts.RenderTimeout),
		logger:   logger.Named("render"),
		scale:    1.0,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

// Initialize points the engine at a loaded document.
func (e *Engine) Initialize(doc Document) error {
	if doc.PageCount < 1 {
		return fmt.Errorf("render: document has no pages")
	}
	if doc.PageWidth <= 0 || doc.PageHeight <= 0 {
		return fmt.Errorf("render: document has no page size")
	}

	e.mu.Lock()
	e.doc = doc
	e.initialized = true
	e.mu.Unlock()

	e.queue.SetDocument(doc)
	e.cache.Clear()

	e.logger.Info("document initialized",
		zap.Int("pages", doc.PageCount),
		zap.Float64("page_width", doc.PageWidth),
		zap.Float64("page_height", doc.PageHeight),
	)
	return nil
}

// Resize records the container measurements, recomputes the optimal
// scale and refreshes the virtual layout.
func (e *Engine) Resize(containerWidth, containerHeight, devicePixelRatio float64) {
	e.mu.Lock()
	doc := e.doc
	initialized := e.initialized
	e.containerHeight = containerHeight
	e.mu.Unlock()
	if !initialized {
		return
	}

	scale := OptimalScale(containerWidth, doc.PageWidth, devicePixelRatio)
	e.SetScale(scale)
	e.scroller.SetDimensions(containerHeight, doc.PageHeight*scale, doc.PageCount)
}

// UpdateScroll records a new scroll offset, computes the page window
// and kicks off background renders for any uncached page in it.
func (e *Engine) UpdateScroll(scrollTop float64) ViewportInfo {
	e.scroller.SetScroll(scrollTop)
	vp := e.scroller.Viewport()

	e.mu.Lock()
	initialized := e.initialized
	scale := e.scale
	doc := e.doc
	bgCtx := e.bgCtx
	e.mu.Unlock()
	if !initialized {
		return vp
	}

	for _, page := range vp.VisiblePages {
		if validatePage(doc, page) != nil || e.cache.Has(page, scale) {
			continue
		}
		e.queue.Enqueue(bgCtx, page, scale, PriorityVisible)
	}
	return vp
}

// RenderPage renders the page at the current scale with interactive
// priority, waiting until the bitmap is cached or ctx is cancelled.
func (e *Engine) RenderPage(ctx context.Context, pageNumber int) (*Bitmap, error) {
	e.mu.Lock()
	scale := e.scale
	e.mu.Unlock()
	return e.RenderPageAt(ctx, pageNumber, scale, PriorityInteractive)
}

// RenderPageAt renders at an explicit scale and priority. If another
// request for the same (page, scale) is in flight the call joins it
// instead of duplicating work.
func (e *Engine) RenderPageAt(ctx context.Context, pageNumber int, scale float64, priority int) (*Bitmap, error) {
	e.mu.Lock()
	doc := e.doc
	initialized := e.initialized
	e.mu.Unlock()

	if !initialized {
		return nil, fmt.Errorf("render: engine not initialized")
	}
	if err := validatePage(doc, pageNumber); err != nil {
		return nil, err
	}
	scale = clampScale(scale)

	for {
		if bitmap, ok := e.cache.Get(pageNumber, scale); ok {
			return bitmap, nil
		}

		t := e.queue.Enqueue(ctx, pageNumber, scale, priority)

		select {
		case <-ctx.Done():
			// The shared task keeps running for any other waiters; this
			// caller just stops waiting.
			return nil, ctx.Err()
		case <-t.done:
		}

		switch {
		case t.err == nil:
			if bitmap, ok := e.cache.Get(pageNumber, scale); ok {
				return bitmap, nil
			}
			// Rendered but already evicted under cache pressure; retry.
		case t.err == ErrAborted && ctx.Err() == nil:
			// The task this call joined was cancelled by its owner.
			// That must not fail unrelated callers, so re-request.
		default:
			return nil, t.err
		}
	}
}

// SetScale switches zoom and clears the whole render cache: nearly
// every cached bitmap is for the old scale, so full invalidation beats
// selective eviction.
func (e *Engine) SetScale(scale float64) {
	scale = clampScale(scale)

	e.mu.Lock()
	if e.scale == scale {
		e.mu.Unlock()
		return
	}
	e.scale = scale
	doc := e.doc
	initialized := e.initialized
	containerHeight := e.containerHeight
	e.mu.Unlock()

	e.cache.Clear()
	e.queue.Flush()
	if initialized {
		e.scroller.SetDimensions(containerHeight, doc.PageHeight*scale, doc.PageCount)
	}

	e.logger.Debug("scale changed, render cache cleared",
		zap.Float64("scale", scale),
	)
}

// Scale returns the current render scale.
func (e *Engine) Scale() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scale
}

// PreloadPages enqueues best-effort renders around currentPage, with
// priority falling off by distance so the nearest pages render first.
func (e *Engine) PreloadPages(currentPage, radius int) {
	e.mu.Lock()
	doc := e.doc
	initialized := e.initialized
	scale := e.scale
	bgCtx := e.bgCtx
	e.mu.Unlock()
	if !initialized {
		return
	}

	for d := 1; d <= radius; d++ {
		for _, page := range []int{currentPage - d, currentPage + d} {
			if validatePage(doc, page) != nil || e.cache.Has(page, scale) {
				continue
			}
			e.queue.Enqueue(bgCtx, page, scale, -d)
		}
	}
}

// Viewport exposes the current page window without changing scroll state.
func (e *Engine) Viewport() ViewportInfo {
	return e.scroller.Viewport()
}

// TotalHeight is the virtualized container height at the current scale.
func (e *Engine) TotalHeight() float64 {
	return e.scroller.TotalHeight()
}

// PageOffset is the absolute Y position of page n.
func (e *Engine) PageOffset(n int) float64 {
	return e.scroller.PageOffset(n)
}

// Stats snapshots cache and queue state.
func (e *Engine) Stats() Stats {
	hits, misses := e.cache.HitMiss()
	e.mu.Lock()
	scale := e.scale
	pages := e.doc.PageCount
	e.mu.Unlock()
	return Stats{
		CachedPages: e.cache.Len(),
		QueueDepth:  e.queue.Len(),
		CacheHits:   hits,
		CacheMisses: misses,
		Scale:       scale,
		TotalPages:  pages,
	}
}

// Reset abandons in-flight work and drops all state, ready for a new
// document.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.bgCancel()
	bgCtx, bgCancel := context.WithCancel(context.Background())
	e.bgCtx = bgCtx
	e.bgCancel = bgCancel
	e.doc = Document{}
	e.initialized = false
	e.scale = 1.0
	e.mu.Unlock()

	e.queue.Flush()
	e.cache.Clear()
	e.scroller.SetDimensions(0, 0, 0)
	e.scroller.SetScroll(0)
}

// Close stops the render worker.
func (e *Engine) Close() {
	e.bgCancel()
	e.queue.Close()
}

// OptimalScale fits the page to the container width, sharpened by the
// device pixel ratio (capped at 2) and clamped to the supported range.
func OptimalScale(containerWidth, pageIntrinsicWidth, devicePixelRatio float64) float64 {
	if containerWidth <= 0 || pageIntrinsicWidth <= 0 {
		return 1.0
	}
	if devicePixelRatio <= 0 {
		devicePixelRatio = 1
	}
	if devicePixelRatio > 2 {
		devicePixelRatio = 2
	}
	return clampScale(containerWidth / pageIntrinsicWidth * devicePixelRatio)
}
