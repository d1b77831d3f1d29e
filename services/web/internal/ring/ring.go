// Package ring computes the segmented progress ring: a donut split into at
// most Cap wedges, each covering a contiguous range of episode or chapter numbers.
package ring

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
)

const DefaultCap = 120

// Segment covers unit numbers [Start, End]. A Placeholder segment stands in
// for a ring with no units at all.
type Segment struct {
	Index       int  `json:"index"`
	Start       int  `json:"start"`
	End         int  `json:"end"`
	Placeholder bool `json:"placeholder,omitempty"`
}

// Partition splits 1..total into min(total, cap) ranges whose sizes differ by
// at most one. The larger ranges come first: for total=10, cap=3 the ranges
// are [1,4] [5,7] [8,10].
func Partition(total, cap int) []Segment {
	if cap <= 0 {
		cap = DefaultCap
	}
	if total <= 0 {
		return []Segment{{Placeholder: true}}
	}
	n := total
	if cap < n {
		n = cap
	}
	segs := make([]Segment, n)
	prev := 0
	for i := 0; i < n; i++ {
		end := ceilDiv((i+1)*total, n)
		segs[i] = Segment{Index: i, Start: prev + 1, End: end}
		prev = end
	}
	return segs
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Filled reports whether every unit in the segment is at or below current.
func (s Segment) Filled(current int) bool {
	return !s.Placeholder && s.End <= current
}

// Label is "7" for a single unit and "5–7" for a range.
func (s Segment) Label() string {
	if s.Placeholder {
		return ""
	}
	if s.Start == s.End {
		return strconv.Itoa(s.End)
	}
	return strconv.Itoa(s.Start) + "–" + strconv.Itoa(s.End)
}

type Wedge struct {
	Segment  Segment `json:"segment"`
	StartDeg float64 `json:"start_deg"`
	EndDeg   float64 `json:"end_deg"`
	Path     string  `json:"path"`
}

// ClampGap limits the angular gap to 80% of one segment's sweep so no wedge
// collapses to a zero-length arc.
func ClampGap(gapDeg float64, segments int) float64 {
	if segments < 1 {
		segments = 1
	}
	if gapDeg < 0 || math.IsNaN(gapDeg) {
		return 0
	}
	if segments == 1 {
		return 0
	}
	limit := 0.8 * 360 / float64(segments)
	if gapDeg > limit {
		return limit
	}
	return gapDeg
}

// Wedges lays the segments clockwise from 12 o'clock around a centre at
// (outerR, outerR) and returns one annular SVG path per segment.
func Wedges(segs []Segment, gapDeg, outerR, innerR float64) []Wedge {
	n := len(segs)
	if n == 0 {
		return nil
	}
	sweep := 360 / float64(n)
	gap := ClampGap(gapDeg, n)
	out := make([]Wedge, n)
	for i, s := range segs {
		start := float64(i)*sweep + gap/2
		end := float64(i+1)*sweep - gap/2
		if end-start >= 360 {
			end = start + 359.99
		}
		out[i] = Wedge{
			Segment:  s,
			StartDeg: start,
			EndDeg:   end,
			Path:     annularPath(outerR, outerR, outerR, innerR, start, end),
		}
	}
	return out
}

func polar(cx, cy, r, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	return cx + r*math.Sin(rad), cy - r*math.Cos(rad)
}

func annularPath(cx, cy, outerR, innerR, startDeg, endDeg float64) string {
	large := 0
	if endDeg-startDeg > 180 {
		large = 1
	}
	ox1, oy1 := polar(cx, cy, outerR, startDeg)
	ox2, oy2 := polar(cx, cy, outerR, endDeg)
	ix2, iy2 := polar(cx, cy, innerR, endDeg)
	ix1, iy1 := polar(cx, cy, innerR, startDeg)
	return fmt.Sprintf("M%s %s A%s %s 0 %d 1 %s %s L%s %s A%s %s 0 %d 0 %s %s Z",
		f(ox1), f(oy1), f(outerR), f(outerR), large, f(ox2), f(oy2),
		f(ix2), f(iy2), f(innerR), f(innerR), large, f(ix1), f(iy1))
}

func f(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

type Options struct {
	Current     int
	Total       int
	Cap         int
	GapDeg      float64
	Size        float64
	Thickness   float64
	Hover       int
	FilledColor string
	EmptyColor  string
	TextColor   string
}

func (o Options) withDefaults() Options {
	if o.Cap <= 0 {
		o.Cap = DefaultCap
	}
	if o.Size <= 0 {
		o.Size = 96
	}
	if o.Thickness <= 0 || o.Thickness >= o.Size/2 {
		o.Thickness = o.Size / 8
	}
	if o.FilledColor == "" {
		o.FilledColor = "#22c55e"
	}
	if o.EmptyColor == "" {
		o.EmptyColor = "#3f3f46"
	}
	if o.TextColor == "" {
		o.TextColor = "#e4e4e7"
	}
	return o
}

// CenterLabel is the hovered segment's range, or "current/total".
func CenterLabel(segs []Segment, current, total, hover int) string {
	if hover >= 0 && hover < len(segs) && !segs[hover].Placeholder {
		return segs[hover].Label()
	}
	return strconv.Itoa(current) + "/" + strconv.Itoa(total)
}

// RenderSVG draws the full ring as a standalone SVG document.
func RenderSVG(o Options) string {
	o = o.withDefaults()
	segs := Partition(o.Total, o.Cap)
	outer := o.Size / 2
	wedges := Wedges(segs, o.GapDeg, outer, outer-o.Thickness)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		f(o.Size), f(o.Size), f(o.Size), f(o.Size))
	for _, w := range wedges {
		color := o.EmptyColor
		if w.Segment.Filled(o.Current) {
			color = o.FilledColor
		}
		fmt.Fprintf(&b, `<path d="%s" fill="%s" data-start="%d" data-end="%d"><title>%s</title></path>`,
			w.Path, html.EscapeString(color), w.Segment.Start, w.Segment.End, html.EscapeString(w.Segment.Label()))
	}
	fmt.Fprintf(&b, `<text x="%s" y="%s" text-anchor="middle" dominant-baseline="central" fill="%s" font-size="%s">%s</text>`,
		f(outer), f(outer), html.EscapeString(o.TextColor), f(o.Size/6),
		html.EscapeString(CenterLabel(segs, o.Current, o.Total, o.Hover)))
	b.WriteString(`</svg>`)
	return b.String()
}
