package handlers

import (
	"net/http"
	"strconv"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/services/web/internal/ring"
)

const (
	maxRingTotal = 100000
	maxRingCap   = 1000
)

type ringSegment struct {
	ring.Segment
	Label  string `json:"label"`
	Filled bool   `json:"filled"`
}

func ringParams(w http.ResponseWriter, r *http.Request, rid string) (ring.Options, bool) {
	o := ring.Options{
		Current: queryInt(r, "current", 0),
		Total:   queryInt(r, "total", 0),
		Cap:     queryInt(r, "cap", ring.DefaultCap),
		Hover:   queryInt(r, "hover", -1),
	}
	if o.Current < 0 || o.Total < 0 || o.Total > maxRingTotal {
		api.BadRequest(w, "INVALID_RING", "current and total must be between 0 and 100000", rid, nil)
		return ring.Options{}, false
	}
	if o.Cap <= 0 || o.Cap > maxRingCap {
		o.Cap = ring.DefaultCap
	}
	if raw := r.URL.Query().Get("gap"); raw != "" {
		gap, err := strconv.ParseFloat(raw, 64)
		if err != nil || gap < 0 {
			api.BadRequest(w, "INVALID_RING", "gap must be a non-negative number", rid, nil)
			return ring.Options{}, false
		}
		o.GapDeg = gap
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		if size, err := strconv.ParseFloat(raw, 64); err == nil && size > 0 && size <= 1024 {
			o.Size = size
		}
	}
	return o, true
}

// RingSVG handles GET /v1/rings/progress.svg.
func RingSVG() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		o, ok := ringParams(w, r, rid)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ring.RenderSVG(o)))
	}
}

// RingSegments handles GET /v1/rings/progress, the segment list behind the SVG.
func RingSegments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		o, ok := ringParams(w, r, rid)
		if !ok {
			return
		}
		segs := ring.Partition(o.Total, o.Cap)
		out := make([]ringSegment, len(segs))
		for i, s := range segs {
			out[i] = ringSegment{Segment: s, Label: s.Label(), Filled: s.Filled(o.Current)}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"current":  o.Current,
			"total":    o.Total,
			"label":    ring.CenterLabel(segs, o.Current, o.Total, o.Hover),
			"segments": out,
		})
	}
}
