package chart

import "io"

// StrategyKind identifies the render path selected for a mounted chart.
type StrategyKind int

const (
	StrategyPending StrategyKind = iota
	StrategyPrimary
	StrategyFallback
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyPrimary:
		return "primary"
	case StrategyFallback:
		return "fallback"
	default:
		return "pending"
	}
}

// View carries the per-draw inputs owned by the component.
type View struct {
	ID      string
	Width   int
	Hover   *HoverState
	LoadErr error
}

// Renderer is one render strategy. It is chosen once per mount.
type Renderer interface {
	Kind() StrategyKind
	// SetSeries replaces the full working series.
	SetSeries(ws []Point) error
	Draw(w io.Writer, v View) error
	// Close releases everything the renderer owns.
	Close() error
}
