package chart

import (
	"errors"
	"fmt"
	"io"
)

type primaryRenderer struct {
	chart        ChartHandle
	series       SeriesHandle
	removeResize func()
}

// newPrimary builds the engine chart on c, feeds it ws and subscribes to
// viewport resizes. A failure part way through releases what was created.
func newPrimary(engine Engine, c Container, vp Viewport, ws []Point) (r *primaryRenderer, err error) {
	if engine == nil {
		return nil, ErrEngineUnavailable
	}
	ch, err := engine.CreateChart(c, DarkChartOptions(widthOf(c)))
	if err != nil {
		return nil, fmt.Errorf("create chart: %w", err)
	}
	defer func() {
		if err != nil {
			_ = safely(ch.Remove)
		}
	}()
	series, err := ch.AddCandlestickSeries(DarkSeriesStyle())
	if err != nil {
		return nil, fmt.Errorf("add candlestick series: %w", err)
	}
	if err := series.SetData(EnginePoints(ws)); err != nil {
		return nil, fmt.Errorf("set data: %w", err)
	}
	r = &primaryRenderer{chart: ch, series: series}
	if vp != nil {
		r.removeResize = vp.AddResizeListener(func() {
			ch.ApplyOptions(ChartOptions{Width: c.ClientWidth()})
		})
	}
	return r, nil
}

func (p *primaryRenderer) Kind() StrategyKind { return StrategyPrimary }

func (p *primaryRenderer) SetSeries(ws []Point) error {
	return p.series.SetData(EnginePoints(ws))
}

func (p *primaryRenderer) Draw(w io.Writer, _ View) error {
	return p.chart.Render(w)
}

// Close removes the resize listener, then disposes the chart. Both steps
// always run.
func (p *primaryRenderer) Close() error {
	var errs []error
	if p.removeResize != nil {
		if err := safely(func() error { p.removeResize(); return nil }); err != nil {
			errs = append(errs, fmt.Errorf("remove resize listener: %w", err))
		}
		p.removeResize = nil
	}
	if p.chart != nil {
		if err := safely(p.chart.Remove); err != nil {
			errs = append(errs, fmt.Errorf("remove chart: %w", err))
		}
		p.chart = nil
	}
	return errors.Join(errs...)
}

// safely runs fn and turns a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func widthOf(c Container) int {
	if c == nil {
		return DefaultWidth
	}
	if w := c.ClientWidth(); w > 0 {
		return w
	}
	return DefaultWidth
}
