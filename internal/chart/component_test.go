package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricechart/internal/market"
)

// fakeEngine 记录创建的图表，模拟外部图表引擎。
type fakeEngine struct {
	mu        sync.Mutex
	charts    []*fakeChart
	createErr error
	removeErr error
}

func (e *fakeEngine) CreateChart(c Container, opts ChartOptions) (ChartHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return nil, e.createErr
	}
	ch := &fakeChart{created: opts, removeErr: e.removeErr}
	e.charts = append(e.charts, ch)
	return ch, nil
}

func (e *fakeEngine) created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.charts)
}

type fakeChart struct {
	mu        sync.Mutex
	created   ChartOptions
	applied   []ChartOptions
	series    *fakeSeries
	removed   int
	removeErr error
}

func (c *fakeChart) AddCandlestickSeries(style SeriesStyle) (SeriesHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = &fakeSeries{style: style}
	return c.series, nil
}

func (c *fakeChart) ApplyOptions(patch ChartOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, patch)
}

func (c *fakeChart) Render(w io.Writer) error {
	_, err := fmt.Fprintf(w, "engine:%d", len(c.series.last()))
	return err
}

func (c *fakeChart) Remove() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed++
	return c.removeErr
}

type fakeSeries struct {
	mu    sync.Mutex
	style SeriesStyle
	sets  [][]EnginePoint
}

func (s *fakeSeries) SetData(points []EnginePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, points)
	return nil
}

func (s *fakeSeries) last() []EnginePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sets) == 0 {
		return nil
	}
	return s.sets[len(s.sets)-1]
}

// panicViewport 的取消订阅函数会 panic。
type panicViewport struct{}

func (panicViewport) AddResizeListener(func()) func() {
	return func() { panic("listener gone") }
}

func engineLoader(e Engine, calls *atomic.Int32) Loader {
	return func(context.Context) (Engine, error) {
		calls.Add(1)
		return e, nil
	}
}

func waitReady(t *testing.T, c *PriceChart) {
	t.Helper()
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("chart never selected a strategy")
	}
}

func TestPriceChartPrimaryLifecycle(t *testing.T) {
	eng := &fakeEngine{}
	var calls atomic.Int32
	surface := NewSurface(500)
	win := NewWindow()
	c := New(surface, Options{Loader: engineLoader(eng, &calls), Viewport: win})

	var pending bytes.Buffer
	if err := c.Render(&pending, minuteSeries(5)); err != nil {
		t.Fatalf("render before mount: %v", err)
	}
	if !strings.Contains(pending.String(), surface.ID()) {
		t.Fatalf("pending markup should carry the container id")
	}

	c.Mount(context.Background())
	c.Mount(context.Background())
	waitReady(t, c)
	if c.Strategy() != StrategyPrimary {
		t.Fatalf("expected primary, got %s", c.Strategy())
	}
	if calls.Load() != 1 || eng.created() != 1 {
		t.Fatalf("expected one load and one chart, got %d/%d", calls.Load(), eng.created())
	}
	ch := eng.charts[0]
	if ch.created.Width != 500 || ch.created.Height != Height {
		t.Fatalf("unexpected chart size %dx%d", ch.created.Width, ch.created.Height)
	}
	if ch.created.Layout.Background != ColorBackground || ch.series.style.UpColor != ColorUp {
		t.Fatalf("dark theme not applied")
	}
	if len(ch.series.last()) != 5 {
		t.Fatalf("first feed should carry the series seen before selection")
	}

	var out bytes.Buffer
	if err := c.Render(&out, minuteSeries(8)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.String() != "engine:8" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if eng.created() != 1 || len(ch.series.sets) != 2 {
		t.Fatalf("update should reuse the chart: charts=%d sets=%d", eng.created(), len(ch.series.sets))
	}
	if c.PointerMove(600) {
		t.Fatalf("pointer moves are inert on the primary path")
	}

	surface.SetWidth(640)
	win.Resize()
	if len(ch.applied) != 1 || ch.applied[0].Width != 640 {
		t.Fatalf("resize should apply the container width, got %+v", ch.applied)
	}

	if err := c.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	if win.Listeners() != 0 || ch.removed != 1 {
		t.Fatalf("teardown incomplete: listeners=%d removed=%d", win.Listeners(), ch.removed)
	}
	if err := c.Render(&out, minuteSeries(2)); !errors.Is(err, ErrUnmounted) {
		t.Fatalf("expected ErrUnmounted, got %v", err)
	}
	if err := c.Unmount(); err != nil {
		t.Fatalf("second unmount should be a no-op: %v", err)
	}
}

func TestPriceChartUnmeasuredContainerUsesDefaultWidth(t *testing.T) {
	eng := &fakeEngine{}
	var calls atomic.Int32
	c := New(NewSurface(0), Options{Loader: engineLoader(eng, &calls)})
	c.Mount(context.Background())
	waitReady(t, c)
	if eng.charts[0].created.Width != DefaultWidth {
		t.Fatalf("expected width %d, got %d", DefaultWidth, eng.charts[0].created.Width)
	}
	if err := c.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}
}

func TestPriceChartTeardownRunsEveryStep(t *testing.T) {
	eng := &fakeEngine{removeErr: errors.New("dispose failed")}
	var calls atomic.Int32
	c := New(NewSurface(700), Options{Loader: engineLoader(eng, &calls), Viewport: panicViewport{}})
	c.Mount(context.Background())
	waitReady(t, c)

	err := c.Unmount()
	if err == nil {
		t.Fatalf("expected teardown errors")
	}
	if !strings.Contains(err.Error(), "listener gone") || !strings.Contains(err.Error(), "dispose failed") {
		t.Fatalf("both failures should be reported, got %v", err)
	}
	if eng.charts[0].removed != 1 {
		t.Fatalf("chart should be removed even when the listener removal fails")
	}
}

func TestPriceChartLoaderRejectsFallsBackOnce(t *testing.T) {
	var calls atomic.Int32
	loader := func(context.Context) (Engine, error) {
		calls.Add(1)
		return nil, errors.New("script blocked")
	}
	surface := NewSurface(DefaultWidth)
	c := New(surface, Options{Loader: loader, Location: time.UTC})
	c.Mount(context.Background())
	waitReady(t, c)

	if c.Strategy() != StrategyFallback {
		t.Fatalf("expected fallback, got %s", c.Strategy())
	}
	if c.LoadError() == nil || c.LoadError().Error() != "script blocked" {
		t.Fatalf("load error should be kept, got %v", c.LoadError())
	}
	for i := 0; i < 3; i++ {
		var out bytes.Buffer
		if err := c.Render(&out, minuteSeries(12+i)); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
		if !strings.Contains(out.String(), "<svg") {
			t.Fatalf("render %d: fallback should draw", i)
		}
	}
	c.Mount(context.Background())
	if calls.Load() != 1 {
		t.Fatalf("acquisition must not be retried, got %d calls", calls.Load())
	}
	if c.Strategy() != StrategyFallback {
		t.Fatalf("strategy must stay fallback")
	}
}

func TestPriceChartEngineCreateErrorFallsBack(t *testing.T) {
	eng := &fakeEngine{createErr: errors.New("no webgl")}
	var calls atomic.Int32
	c := New(NewSurface(600), Options{Loader: engineLoader(eng, &calls)})
	c.Mount(context.Background())
	waitReady(t, c)
	if c.Strategy() != StrategyFallback {
		t.Fatalf("expected fallback after create failure, got %s", c.Strategy())
	}
	if !strings.Contains(c.LoadError().Error(), "no webgl") {
		t.Fatalf("unexpected load error %v", c.LoadError())
	}
}

func TestPriceChartPanickingLoaderFallsBack(t *testing.T) {
	c := New(NewSurface(600), Options{Loader: func(context.Context) (Engine, error) { panic("boom") }})
	c.Mount(context.Background())
	waitReady(t, c)
	if c.Strategy() != StrategyFallback {
		t.Fatalf("expected fallback, got %s", c.Strategy())
	}
}

func TestPriceChartEmptySeries(t *testing.T) {
	fb := New(NewSurface(600), Options{})
	fb.Mount(context.Background())
	waitReady(t, fb)
	var out bytes.Buffer
	if err := fb.Render(&out, nil); err != nil {
		t.Fatalf("fallback render: %v", err)
	}
	if !strings.Contains(out.String(), "No data available") || strings.Contains(out.String(), "<svg") {
		t.Fatalf("expected placeholder only, got %s", out.String())
	}
	if fb.PointerMove(100) {
		t.Fatalf("hover over an empty series should not resolve")
	}

	eng := &fakeEngine{}
	var calls atomic.Int32
	pr := New(NewSurface(600), Options{Loader: engineLoader(eng, &calls)})
	pr.Mount(context.Background())
	waitReady(t, pr)
	out.Reset()
	if err := pr.Render(&out, []market.PricePoint{}); err != nil {
		t.Fatalf("primary render: %v", err)
	}
	if out.String() != "engine:0" {
		t.Fatalf("unexpected primary output %q", out.String())
	}
}

func TestPriceChartHover(t *testing.T) {
	surface := NewSurface(DefaultWidth)
	c := New(surface, Options{Location: time.UTC})
	c.Mount(context.Background())
	waitReady(t, c)

	series := minuteSeries(10)
	var out bytes.Buffer
	if err := c.Render(&out, series); err != nil {
		t.Fatalf("render: %v", err)
	}
	g := NewGeometry(surface.ClientWidth(), c.Points())
	if !c.PointerMove(g.Pad.Left + 0.5*g.CandleSpacing) {
		t.Fatalf("move over candle 0 should resolve")
	}
	if h := c.Hover(); h == nil || h.Index != 0 {
		t.Fatalf("expected hover index 0, got %+v", h)
	}
	if c.PointerMove(1) {
		t.Fatalf("move over the left margin should be a no-op")
	}
	if h := c.Hover(); h == nil || h.Index != 0 {
		t.Fatalf("hover should be kept after a no-op move")
	}

	out.Reset()
	if err := c.Render(&out, series); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out.String(), `class="tooltip"`) {
		t.Fatalf("hovered render should include the tooltip")
	}

	c.PointerLeave()
	if c.Hover() != nil {
		t.Fatalf("leave should clear hover")
	}
	out.Reset()
	if err := c.Render(&out, series); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out.String(), `class="tooltip"`) {
		t.Fatalf("tooltip should be gone after leave")
	}
}

func TestPriceChartLateEngineAfterUnmount(t *testing.T) {
	eng := &fakeEngine{}
	release := make(chan struct{})
	loader := func(context.Context) (Engine, error) {
		<-release
		return eng, nil
	}
	c := New(NewSurface(600), Options{Loader: loader, Viewport: NewWindow()})
	c.Mount(context.Background())
	if err := c.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	close(release)
	select {
	case <-c.acquired:
	case <-time.After(2 * time.Second):
		t.Fatalf("acquisition never finished")
	}
	if eng.created() != 0 {
		t.Fatalf("no chart may be created after unmount")
	}
	if c.Strategy() != StrategyPending {
		t.Fatalf("strategy should stay pending, got %s", c.Strategy())
	}
}

func TestPriceChartUnmountBeforeMount(t *testing.T) {
	var calls atomic.Int32
	c := New(NewSurface(600), Options{Loader: engineLoader(&fakeEngine{}, &calls)})
	if err := c.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	c.Mount(context.Background())
	waitReady(t, c)
	if calls.Load() != 0 {
		t.Fatalf("loader should not run after unmount")
	}
}

func TestPriceChartHoverSurvivesDataChange(t *testing.T) {
	surface := NewSurface(DefaultWidth)
	c := New(surface, Options{Location: time.UTC})
	c.Mount(context.Background())
	waitReady(t, c)

	var out bytes.Buffer
	if err := c.Render(&out, minuteSeries(10)); err != nil {
		t.Fatalf("render: %v", err)
	}
	g := NewGeometry(surface.ClientWidth(), c.Points())
	if !c.PointerMove(g.CandleX(8)) {
		t.Fatalf("move over candle 8 should resolve")
	}
	before := c.Hover()

	out.Reset()
	if err := c.Render(&out, minuteSeries(3)); err != nil {
		t.Fatalf("render shorter series: %v", err)
	}
	after := c.Hover()
	if after == nil || after.Index != 8 || !after.Point.Time.Equal(before.Point.Time) {
		t.Fatalf("hover should keep the captured point, got %+v", after)
	}
	if !strings.Contains(out.String(), `class="tooltip"`) {
		t.Fatalf("stale hover should still draw its tooltip")
	}
}
