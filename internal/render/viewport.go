package render

import (
	"math"
	"sync"
)

// Scroller computes the minimal page window worth rendering for the
// current scroll position. Pages are laid out vertically at a uniform
// height; a small buffer beyond the visible window masks scroll latency.
type Scroller struct {
	mu              sync.Mutex
	scrollTop       float64
	containerHeight float64
	pageHeight      float64
	totalPages      int
	buffer          int
}

// NewScroller creates a scroller with the default page buffer.
func NewScroller() *Scroller {
	return &Scroller{buffer: DefaultBuffer}
}

// SetDimensions records the measured layout. Call on init and resize.
func (s *Scroller) SetDimensions(containerHeight, pageHeight float64, totalPages int) {
	s.mu.Lock()
	s.containerHeight = containerHeight
	s.pageHeight = pageHeight
	s.totalPages = totalPages
	s.mu.Unlock()
}

// SetScroll records the current scroll offset.
func (s *Scroller) SetScroll(scrollTop float64) {
	s.mu.Lock()
	if scrollTop < 0 {
		scrollTop = 0
	}
	s.scrollTop = scrollTop
	s.mu.Unlock()
}

// Viewport derives the buffered page window. Before the layout is
// measured (zero page height or page count) it degrades to page 1
// rather than dividing by zero.
func (s *Scroller) Viewport() ViewportInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pageHeight == 0 || s.totalPages == 0 {
		return ViewportInfo{StartPage: 1, EndPage: 1, VisiblePages: []int{1}}
	}

	start := int(math.Floor(s.scrollTop/s.pageHeight)) + 1 - s.buffer
	if start < 1 {
		start = 1
	}
	end := int(math.Ceil((s.scrollTop+s.containerHeight)/s.pageHeight)) + s.buffer
	if end > s.totalPages {
		end = s.totalPages
	}
	if end < start {
		end = start
	}

	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return ViewportInfo{StartPage: start, EndPage: end, VisiblePages: pages}
}

// TotalHeight is the virtualized scroll container height.
func (s *Scroller) TotalHeight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.totalPages) * s.pageHeight
}

// PageOffset is the absolute Y position of page n in the container.
func (s *Scroller) PageOffset(n int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(n-1) * s.pageHeight
}
