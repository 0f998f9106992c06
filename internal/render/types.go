package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Scale bounds and defaults for page rasterization.
const (
	MinScale = 0.25
	MaxScale = 3.0

	// DefaultPageCacheSize bounds how many rendered bitmaps stay resident.
	DefaultPageCacheSize = 10

	// DefaultBuffer is how many pages beyond the visible window are
	// rendered to mask scroll latency.
	DefaultBuffer = 2
)

// ErrAborted marks a render task cancelled before completion. It is
// expected control flow, not a failure.
var ErrAborted = errors.New("render: task aborted")

// Bitmap is one rasterized page. Pixels is the encoded image as the
// rasterizer produced it; the cache deep-copies it so later mutation of
// a source buffer can never corrupt a cached render.
type Bitmap struct {
	Width  int
	Height int
	Pixels []byte
}

// Clone returns an independent copy of the bitmap.
func (b *Bitmap) Clone() *Bitmap {
	if b == nil {
		return nil
	}
	pixels := make([]byte, len(b.Pixels))
	copy(pixels, b.Pixels)
	return &Bitmap{Width: b.Width, Height: b.Height, Pixels: pixels}
}

// Document describes a loaded multi-page PDF. Parsing and decoding are
// delegated to the external engine; this is only what the renderer needs.
type Document struct {
	URL        string
	PageCount  int
	PageWidth  float64 // intrinsic width in points
	PageHeight float64 // intrinsic height in points
}

// Rasterizer renders a single page of a document at the given scale.
// Implementations must honor ctx cancellation.
type Rasterizer interface {
	RenderPage(ctx context.Context, doc Document, pageNumber int, scale float64) (*Bitmap, error)
}

// ViewportInfo is the derived set of pages worth rendering for the
// current scroll position. Recomputed on every scroll/resize event,
// never persisted.
type ViewportInfo struct {
	StartPage    int   `json:"start_page"`
	EndPage      int   `json:"end_page"`
	VisiblePages []int `json:"visible_pages"`
}

// pageKey quantizes scale to two decimals so near-identical zoom levels
// share a cache entry and a pending render task.
func pageKey(pageNumber int, scale float64) string {
	return strconv.Itoa(pageNumber) + "_" + strconv.FormatFloat(scale, 'f', 2, 64)
}

// clampScale keeps a computed scale inside the supported range.
func clampScale(scale float64) float64 {
	if scale < MinScale {
		return MinScale
	}
	if scale > MaxScale {
		return MaxScale
	}
	return scale
}

func validatePage(doc Document, pageNumber int) error {
	if pageNumber < 1 || pageNumber > doc.PageCount {
		return fmt.Errorf("render: page %d out of range [1,%d]", pageNumber, doc.PageCount)
	}
	return nil
}
