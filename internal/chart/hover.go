package chart

// HoverState is the candle currently under the pointer.
type HoverState struct {
	Index int
	Point Point
	X     float64
}

// Interaction owns the hover state of the fallback renderer.
type Interaction struct {
	hover *HoverState
}

// Move updates the hover state when x falls on a candle. An x outside
// [0, Count) leaves the previous state untouched. It reports whether the
// state was updated.
func (in *Interaction) Move(g Geometry, ws []Point, x float64) bool {
	idx, ok := g.IndexAt(x)
	if !ok || idx >= len(ws) {
		return false
	}
	in.hover = &HoverState{Index: idx, Point: ws[idx], X: g.CandleX(idx)}
	return true
}

// Leave clears the hover state.
func (in *Interaction) Leave() { in.hover = nil }

// Current returns a copy of the hover state, nil when nothing is hovered.
func (in *Interaction) Current() *HoverState {
	if in.hover == nil {
		return nil
	}
	h := *in.hover
	return &h
}
