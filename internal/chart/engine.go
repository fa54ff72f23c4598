package chart

import (
	"context"
	"errors"
	"io"
)

// ErrEngineUnavailable is returned by loaders that cannot provide an engine.
var ErrEngineUnavailable = errors.New("chart engine unavailable")

// Container is the element a chart renders into.
type Container interface {
	ID() string
	// ClientWidth returns the current pixel width, 0 when not yet measured.
	ClientWidth() int
}

// Viewport delivers window resize notifications.
type Viewport interface {
	AddResizeListener(fn func()) (remove func())
}

// Engine is the external interactive charting capability.
type Engine interface {
	CreateChart(c Container, opts ChartOptions) (ChartHandle, error)
}

// ChartHandle is a live engine chart bound to a container.
type ChartHandle interface {
	AddCandlestickSeries(style SeriesStyle) (SeriesHandle, error)
	ApplyOptions(patch ChartOptions)
	// Render writes the chart markup into w.
	Render(w io.Writer) error
	Remove() error
}

// SeriesHandle replaces the data of one series.
type SeriesHandle interface {
	SetData(points []EnginePoint) error
}

// Loader acquires the engine. It is called once per mounted chart.
type Loader func(ctx context.Context) (Engine, error)

// Unavailable is a Loader that always fails; it selects the fallback renderer.
func Unavailable(reason string) Loader {
	return func(context.Context) (Engine, error) {
		if reason == "" {
			return nil, ErrEngineUnavailable
		}
		return nil, errors.New(reason)
	}
}
