// Package carousel models the completions carousel: a spring-driven
// fractional index and a layout where cards outside a central window stack
// into a bounded gutter.
package carousel

import "math"

type Params struct {
	SpringK   float64 `json:"spring_k"`
	Damping   float64 `json:"damping"`
	Window    int     `json:"window"`
	Spread    float64 `json:"spread"`
	MaxOffset float64 `json:"max_offset"`
	K         float64 `json:"k"`
}

var DefaultParams = Params{
	SpringK:   0.18,
	Damping:   0.72,
	Window:    7,
	Spread:    120,
	MaxOffset: 160,
	K:         3,
}

const settleEpsilon = 1e-3

// State is the animated position of a carousel with Count cards.
type State struct {
	Count    int
	Position float64
	Target   float64
	Velocity float64
	Params   Params
}

func NewState(count int, p Params) *State {
	return &State{Count: count, Params: p}
}

func (s *State) max() float64 {
	if s.Count <= 1 {
		return 0
	}
	return float64(s.Count - 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Step advances the spring integrator by one frame and reports whether the
// carousel has come to rest on its target.
func (s *State) Step() bool {
	s.Velocity = (s.Velocity + (s.Target-s.Position)*s.Params.SpringK) * s.Params.Damping
	s.Position = clamp(s.Position+s.Velocity, 0, s.max())
	if math.Abs(s.Velocity) < settleEpsilon && math.Abs(s.Target-s.Position) < settleEpsilon {
		s.Position = s.Target
		s.Velocity = 0
		return true
	}
	return false
}

// Drag moves the target by a fractional number of cards.
func (s *State) Drag(deltaIndex float64) {
	s.Target = clamp(s.Target+deltaIndex, 0, s.max())
}

// Release ends a drag, optionally snapping the target to the nearest card.
func (s *State) Release(snap bool) {
	if snap {
		s.Target = float64(Snap(s.Target, s.Count))
	}
}

// Snap rounds position to the nearest valid card index.
func Snap(position float64, count int) int {
	if count <= 0 {
		return 0
	}
	i := int(math.Round(position))
	if i < 0 {
		return 0
	}
	if i > count-1 {
		return count - 1
	}
	return i
}

// Compress maps an unbounded depth beyond the window into [0, maxOffset).
func Compress(depth, maxOffset, k float64) float64 {
	if depth <= 0 || k <= 0 {
		return 0
	}
	return maxOffset * (1 - math.Exp(-depth/k))
}

type Card struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Depth float64 `json:"depth"`
}

func layoutAt(count, center, window int, spread, maxOffset, k float64) []Card {
	half := window / 2
	cards := make([]Card, count)
	for i := range cards {
		d := i - center
		abs := d
		if abs < 0 {
			abs = -abs
		}
		x := float64(abs) * spread
		if abs > half {
			x = float64(half)*spread + Compress(float64(abs-half), maxOffset, k)
		}
		if d < 0 {
			x = -x
		}
		cards[i] = Card{Index: i, X: x, Depth: float64(abs)}
	}
	return cards
}

// Layout places every card for a fractional position by interpolating the
// layouts at floor(position) and ceil(position).
func Layout(count int, position float64, window int, spread, maxOffset, k float64) []Card {
	if count <= 0 {
		return []Card{}
	}
	if window < 1 {
		window = 1
	}
	position = clamp(position, 0, float64(count-1))
	lo := int(math.Floor(position))
	hi := int(math.Ceil(position))
	a := layoutAt(count, lo, window, spread, maxOffset, k)
	if lo == hi {
		return a
	}
	b := layoutAt(count, hi, window, spread, maxOffset, k)
	t := position - float64(lo)
	for i := range a {
		a[i].X += (b[i].X - a[i].X) * t
		a[i].Depth += (b[i].Depth - a[i].Depth) * t
	}
	return a
}

// Hint is the initial layout sent with a list so the first paint matches
// the client's physics.
type Hint struct {
	Params   Params  `json:"params"`
	Position float64 `json:"position"`
	Cards    []Card  `json:"cards"`
}

func NewHint(count int, position float64, p Params) Hint {
	return Hint{
		Params:   p,
		Position: clamp(position, 0, math.Max(0, float64(count-1))),
		Cards:    Layout(count, position, p.Window, p.Spread, p.MaxOffset, p.K),
	}
}
