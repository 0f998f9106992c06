package render

import "testing"

func TestViewportMath(t *testing.T) {
	s := NewScroller()
	s.SetDimensions(1000, 800, 20)
	s.SetScroll(4000)

	vp := s.Viewport()
	if vp.StartPage != 4 {
		t.Fatalf("expected startPage 4, got %d", vp.StartPage)
	}
	if vp.EndPage != 9 {
		t.Fatalf("expected endPage 9, got %d", vp.EndPage)
	}
	want := []int{4, 5, 6, 7, 8, 9}
	if len(vp.VisiblePages) != len(want) {
		t.Fatalf("expected %v, got %v", want, vp.VisiblePages)
	}
	for i, p := range want {
		if vp.VisiblePages[i] != p {
			t.Fatalf("expected %v, got %v", want, vp.VisiblePages)
		}
	}
}

func TestViewportAtTop(t *testing.T) {
	s := NewScroller()
	s.SetDimensions(1000, 800, 20)
	s.SetScroll(0)

	vp := s.Viewport()
	if vp.StartPage != 1 {
		t.Fatalf("startPage must clamp to 1, got %d", vp.StartPage)
	}
	// ceil(1000/800)=2, +2 buffer = 4
	if vp.EndPage != 4 {
		t.Fatalf("expected endPage 4, got %d", vp.EndPage)
	}
}

func TestViewportAtBottom(t *testing.T) {
	s := NewScroller()
	s.SetDimensions(1000, 800, 20)
	s.SetScroll(15000)

	vp := s.Viewport()
	if vp.EndPage != 20 {
		t.Fatalf("endPage must clamp to totalPages, got %d", vp.EndPage)
	}
}

func TestViewportUnmeasured(t *testing.T) {
	s := NewScroller()

	vp := s.Viewport()
	if vp.StartPage != 1 || vp.EndPage != 1 {
		t.Fatalf("unmeasured layout must degrade to page 1, got %+v", vp)
	}
	if len(vp.VisiblePages) != 1 || vp.VisiblePages[0] != 1 {
		t.Fatalf("unmeasured layout must report [1], got %v", vp.VisiblePages)
	}
}

func TestTotalHeightAndOffsets(t *testing.T) {
	s := NewScroller()
	s.SetDimensions(1000, 800, 20)

	if h := s.TotalHeight(); h != 16000 {
		t.Fatalf("expected total height 16000, got %v", h)
	}
	if off := s.PageOffset(1); off != 0 {
		t.Fatalf("page 1 offset must be 0, got %v", off)
	}
	if off := s.PageOffset(5); off != 3200 {
		t.Fatalf("page 5 offset must be 3200, got %v", off)
	}
}

func TestNegativeScrollClamped(t *testing.T) {
	s := NewScroller()
	s.SetDimensions(1000, 800, 20)
	s.SetScroll(-250)

	vp := s.Viewport()
	if vp.StartPage != 1 {
		t.Fatalf("negative scroll must clamp, got start %d", vp.StartPage)
	}
}
