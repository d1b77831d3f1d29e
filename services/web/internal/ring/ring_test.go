package ring

import (
	"math"
	"strings"
	"testing"
)

func TestPartition_TenIntoThree(t *testing.T) {
	segs := Partition(10, 3)
	want := [][2]int{{1, 4}, {5, 7}, {8, 10}}
	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(segs))
	}
	for i, w := range want {
		if segs[i].Start != w[0] || segs[i].End != w[1] {
			t.Fatalf("segment %d = [%d,%d], want %v", i, segs[i].Start, segs[i].End, w)
		}
	}
}

func TestPartition_Balanced(t *testing.T) {
	for total := 1; total <= 300; total++ {
		for _, cap := range []int{1, 2, 3, 7, 12, 120} {
			segs := Partition(total, cap)
			n := total
			if cap < n {
				n = cap
			}
			if len(segs) != n {
				t.Fatalf("total=%d cap=%d: got %d segments", total, cap, len(segs))
			}
			min, max := total, 0
			next := 1
			for _, s := range segs {
				if s.Start != next {
					t.Fatalf("total=%d cap=%d: gap or overlap at %d", total, cap, s.Start)
				}
				size := s.End - s.Start + 1
				if size < min {
					min = size
				}
				if size > max {
					max = size
				}
				next = s.End + 1
			}
			if next != total+1 {
				t.Fatalf("total=%d cap=%d: ranges end at %d", total, cap, next-1)
			}
			if max-min > 1 {
				t.Fatalf("total=%d cap=%d: sizes differ by %d", total, cap, max-min)
			}
		}
	}
}

func TestPartition_ZeroTotal(t *testing.T) {
	segs := Partition(0, 120)
	if len(segs) != 1 || !segs[0].Placeholder {
		t.Fatalf("expected single placeholder, got %+v", segs)
	}
	if segs[0].Filled(0) || segs[0].Filled(100) {
		t.Fatal("placeholder must never be filled")
	}
}

func TestFilled(t *testing.T) {
	segs := Partition(10, 3)
	for current := 0; current <= 10; current++ {
		for _, s := range segs {
			if got, want := s.Filled(current), s.End <= current; got != want {
				t.Fatalf("current=%d seg=[%d,%d]: filled=%v", current, s.Start, s.End, got)
			}
		}
	}
}

func TestLabel(t *testing.T) {
	if got := (Segment{Start: 7, End: 7}).Label(); got != "7" {
		t.Fatalf("got %q", got)
	}
	if got := (Segment{Start: 5, End: 7}).Label(); got != "5–7" {
		t.Fatalf("got %q", got)
	}
}

func TestClampGap(t *testing.T) {
	if got := ClampGap(10, 120); math.Abs(got-2.4) > 1e-9 {
		t.Fatalf("expected clamp to 2.4, got %v", got)
	}
	if got := ClampGap(2, 12); got != 2 {
		t.Fatalf("expected gap kept, got %v", got)
	}
	if got := ClampGap(-5, 12); got != 0 {
		t.Fatalf("expected 0 for negative gap, got %v", got)
	}
}

func TestWedges_PositiveSweep(t *testing.T) {
	segs := Partition(500, 120)
	for _, w := range Wedges(segs, 50, 48, 40) {
		if w.EndDeg <= w.StartDeg {
			t.Fatalf("degenerate wedge %+v", w)
		}
		if !strings.HasPrefix(w.Path, "M") || !strings.HasSuffix(w.Path, "Z") {
			t.Fatalf("malformed path %q", w.Path)
		}
	}
}

func TestRenderSVG_Labels(t *testing.T) {
	svg := RenderSVG(Options{Current: 5, Total: 12, Hover: -1})
	if !strings.Contains(svg, ">5/12</text>") {
		t.Fatalf("expected default centre label, got %s", svg)
	}
	if strings.Count(svg, "<path") != 12 {
		t.Fatalf("expected 12 wedges")
	}

	hovered := RenderSVG(Options{Current: 5, Total: 10, Cap: 3, Hover: 1})
	if !strings.Contains(hovered, ">5–7</text>") {
		t.Fatalf("expected hovered label, got %s", hovered)
	}
}
