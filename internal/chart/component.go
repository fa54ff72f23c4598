package chart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"pricechart/internal/logger"
	"pricechart/internal/market"
)

// ErrUnmounted is returned when a chart is used after Unmount.
var ErrUnmounted = errors.New("price chart unmounted")

// Options configures a PriceChart.
type Options struct {
	// Loader acquires the primary engine; nil selects the fallback.
	Loader   Loader
	Viewport Viewport
	// Location is used for tooltip timestamps; nil means time.Local.
	Location *time.Location
}

// PriceChart renders a price series through the strategy selected at mount.
//
// The engine is requested exactly once, asynchronously, by Mount. Success
// selects the primary renderer, any failure selects the fallback for the rest
// of the mount. Every exported method is safe for concurrent use; calls are
// applied in the order they acquire the chart's lock.
type PriceChart struct {
	container Container
	loader    Loader
	viewport  Viewport
	loc       *time.Location

	mountOnce sync.Once
	readyOnce sync.Once
	ready     chan struct{}
	// acquired 在 acquire 返回时关闭；Unmount 会提前关闭 ready，两者不等价。
	acquired  chan struct{}

	mu       sync.Mutex
	mounted  bool
	closed   bool
	renderer Renderer
	loadErr  error
	working  []Point
	inter    Interaction
}

func New(container Container, opts Options) *PriceChart {
	loader := opts.Loader
	if loader == nil {
		loader = Unavailable("")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &PriceChart{
		container: container,
		loader:    loader,
		viewport:  opts.Viewport,
		loc:       loc,
		ready:     make(chan struct{}),
		acquired:  make(chan struct{}),
	}
}

// ID returns the container element id.
func (c *PriceChart) ID() string {
	if c.container == nil {
		return ""
	}
	return c.container.ID()
}

// Mount starts engine acquisition. Calls after the first are no-ops.
func (c *PriceChart) Mount(ctx context.Context) {
	c.mountOnce.Do(func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			c.markReady()
			return
		}
		c.mounted = true
		c.mu.Unlock()
		go c.acquire(ctx)
	})
}

func (c *PriceChart) acquire(ctx context.Context) {
	defer c.markReady()
	defer close(c.acquired)

	var engine Engine
	err := safely(func() error {
		var lerr error
		engine, lerr = c.loader(ctx)
		return lerr
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		// Unmounted while loading: nothing may touch the container now.
		return
	}
	if err == nil {
		var r *primaryRenderer
		err = safely(func() error {
			var perr error
			r, perr = newPrimary(engine, c.container, c.viewport, c.working)
			return perr
		})
		if err == nil {
			c.renderer = r
			logger.Debugf("[chart] %s 使用主渲染引擎", c.ID())
			return
		}
	}
	logger.Warnf("[chart] %s 主渲染引擎不可用，启用内置渲染: %v", c.ID(), err)
	fb := newFallback(c.loc)
	_ = fb.SetSeries(c.working)
	c.renderer = fb
	c.loadErr = err
}

func (c *PriceChart) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// Ready is closed once a strategy is selected or the chart is unmounted.
func (c *PriceChart) Ready() <-chan struct{} { return c.ready }

// Strategy returns the selected strategy, StrategyPending before selection.
func (c *PriceChart) Strategy() StrategyKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.renderer == nil {
		return StrategyPending
	}
	return c.renderer.Kind()
}

// LoadError returns the acquisition failure kept for diagnostics.
func (c *PriceChart) LoadError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Render re-derives the working series from series, hands the full series to
// the active strategy and writes the chart markup to w. Before a strategy is
// selected it writes the empty container and keeps the series for the
// primary renderer's first feed.
func (c *PriceChart) Render(w io.Writer, series []market.PricePoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrUnmounted
	}
	c.working = Normalize(series)
	if c.renderer == nil {
		return renderPending(w, c.ID())
	}
	if err := c.renderer.SetSeries(c.working); err != nil {
		return fmt.Errorf("update %s series: %w", c.renderer.Kind(), err)
	}
	return c.renderer.Draw(w, View{
		ID:      c.ID(),
		Width:   c.container.ClientWidth(),
		Hover:   c.inter.Current(),
		LoadErr: c.loadErr,
	})
}

// Points returns a copy of the current working series.
func (c *PriceChart) Points() []Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Point, len(c.working))
	copy(out, c.working)
	return out
}

// PointerMove maps a surface x to a candle and updates the hover state.
// It is inert unless the fallback renderer is active.
func (c *PriceChart) PointerMove(x float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.renderer == nil || c.renderer.Kind() != StrategyFallback {
		return false
	}
	g := NewGeometry(c.container.ClientWidth(), c.working)
	return c.inter.Move(g, c.working, x)
}

// PointerLeave clears the hover state.
func (c *PriceChart) PointerLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inter.Leave()
}

// Hover returns the current hover state, nil when nothing is hovered.
func (c *PriceChart) Hover() *HoverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inter.Current()
}

// Unmount releases the renderer. A pending acquisition is left to finish but
// its result is discarded.
func (c *PriceChart) Unmount() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mounted = false
	r := c.renderer
	c.inter.Leave()
	c.mu.Unlock()

	if r == nil {
		c.markReady()
		return nil
	}
	return r.Close()
}
