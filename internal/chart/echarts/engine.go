// Package echarts adapts go-echarts to the chart.Engine capability.
package echarts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/markcheno/go-talib"

	"pricechart/internal/chart"
	"pricechart/internal/logger"
)

const (
	DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"
	scriptName        = "echarts.min.js"
	seriesName        = "price"
	axisTimeLayout    = "01-02 15:04"
	smaColor          = "#f7a600"
	emaColor          = "#2962ff"
)

var (
	errChartRemoved = errors.New("chart removed")
	errUnordered    = errors.New("data must be ascending by time")
)

// Config 控制 ECharts 引擎的加载与渲染。
type Config struct {
	AssetsHost string
	// ProbeTimeout 为 0 表示不设超时。
	ProbeTimeout time.Duration
	HTTPClient   *http.Client
	// SMAPeriod/EMAPeriod >= 2 时叠加对应的收盘价均线。
	SMAPeriod int
	EMAPeriod int
	Location  *time.Location
	Title     string
}

func (c Config) withDefaults() Config {
	out := c
	if out.AssetsHost == "" {
		out.AssetsHost = DefaultAssetsHost
	}
	if !strings.HasSuffix(out.AssetsHost, "/") {
		out.AssetsHost += "/"
	}
	if out.HTTPClient == nil {
		out.HTTPClient = http.DefaultClient
	}
	if out.Location == nil {
		out.Location = time.Local
	}
	if out.Title == "" {
		out.Title = "Price chart"
	}
	return out
}

// NewLoader returns a chart.Loader that succeeds once the engine script can be
// fetched from the assets host.
func NewLoader(cfg Config) chart.Loader {
	cfg = cfg.withDefaults()
	return func(ctx context.Context) (chart.Engine, error) {
		if err := Probe(ctx, cfg); err != nil {
			return nil, err
		}
		return &Engine{cfg: cfg}, nil
	}
}

// Probe checks that the ECharts script is reachable.
func Probe(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	if cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
	}
	url := cfg.AssetsHost + scriptName
	status, err := fetchStatus(ctx, cfg.HTTPClient, http.MethodHead, url)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = fetchStatus(ctx, cfg.HTTPClient, http.MethodGet, url)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	if status/100 != 2 {
		return fmt.Errorf("load %s: status %d", url, status)
	}
	logger.Debugf("[echarts] engine script ok: %s", url)
	return nil
}

func fetchStatus(ctx context.Context, client *http.Client, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Engine creates ECharts-backed charts.
type Engine struct {
	cfg Config
}

// NewEngine returns an engine without probing the assets host.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

func (e *Engine) CreateChart(c chart.Container, o chart.ChartOptions) (chart.ChartHandle, error) {
	if c == nil {
		return nil, errors.New("container is required")
	}
	if o.Width <= 0 {
		o.Width = chart.DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = chart.Height
	}
	return &Chart{cfg: e.cfg, id: c.ID(), opts: o}, nil
}

// Chart is one ECharts candlestick chart.
type Chart struct {
	cfg Config
	id  string

	mu      sync.Mutex
	opts    chart.ChartOptions
	series  *Series
	removed bool
}

func (ch *Chart) AddCandlestickSeries(style chart.SeriesStyle) (chart.SeriesHandle, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.removed {
		return nil, errChartRemoved
	}
	if ch.series != nil {
		return nil, errors.New("chart already has a candlestick series")
	}
	ch.series = &Series{style: style}
	return ch.series, nil
}

// ApplyOptions patches the size; other fields are fixed at creation.
func (ch *Chart) ApplyOptions(patch chart.ChartOptions) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if patch.Width > 0 {
		ch.opts.Width = patch.Width
	}
	if patch.Height > 0 {
		ch.opts.Height = patch.Height
	}
}

// Width returns the current chart width.
func (ch *Chart) Width() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.opts.Width
}

func (ch *Chart) Remove() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.removed = true
	ch.series = nil
	return nil
}

// Removed reports whether Remove was called.
func (ch *Chart) Removed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.removed
}

func (ch *Chart) Render(w io.Writer) error {
	ch.mu.Lock()
	if ch.removed {
		ch.mu.Unlock()
		return errChartRemoved
	}
	o := ch.opts
	var (
		style  chart.SeriesStyle
		points []chart.EnginePoint
	)
	if ch.series != nil {
		style = ch.series.style
		points = ch.series.Points()
	}
	ch.mu.Unlock()

	return ch.build(o, style, points).Render(w)
}

func (ch *Chart) build(o chart.ChartOptions, style chart.SeriesStyle, points []chart.EnginePoint) *charts.Kline {
	k := charts.NewKLine()
	k.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       ch.cfg.Title,
			Width:           fmt.Sprintf("%dpx", o.Width),
			Height:          fmt.Sprintf("%dpx", o.Height),
			BackgroundColor: o.Layout.Background,
			ChartID:         ch.id,
			AssetsHost:      ch.cfg.AssetsHost,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:        opts.Bool(true),
			Trigger:     "axis",
			AxisPointer: &opts.AxisPointer{Type: crosshairType(o.Crosshair)},
		}),
		charts.WithGridOpts(opts.Grid{
			Top:    percent(o.RightPriceScale.Margins.Top),
			Bottom: percent(o.RightPriceScale.Margins.Bottom),
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			Show:      opts.Bool(o.TimeScale.TimeVisible),
			AxisLabel: &opts.AxisLabel{Color: o.TimeScale.TextColor},
			AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: o.TimeScale.BorderColor}},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: o.Grid.VertLines.Color}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Position:  "right",
			Show:      opts.Bool(o.RightPriceScale.Visible),
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: o.RightPriceScale.TextColor},
			AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: o.RightPriceScale.BorderColor}},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: o.Grid.HorzLines.Color}},
		}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100}),
	)

	xs := make([]string, len(points))
	items := make([]opts.KlineData, len(points))
	for i, p := range points {
		xs[i] = time.Unix(p.Time, 0).In(ch.cfg.Location).Format(axisTimeLayout)
		// ECharts order: open, close, low, high.
		items[i] = opts.KlineData{Value: [4]float64{p.Open, p.Close, p.Low, p.High}}
	}
	k.SetXAxis(xs).AddSeries(seriesName, items,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        style.UpColor,
			Color0:       style.DownColor,
			BorderColor:  style.BorderUpColor,
			BorderColor0: style.BorderDownColor,
		}),
	)
	for _, line := range ch.overlays(xs, points) {
		k.Overlap(line)
	}
	return k
}

// movingAverage 用 talib 计算收盘价均线；预热段显示为空。
func movingAverage(xs []string, closes []float64, name string, period int, fn func([]float64, int) []float64, color string) *charts.Line {
	if period < 2 || len(closes) < period {
		return nil
	}
	values := fn(closes, period)
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		if i < period-1 || math.IsNaN(v) || math.IsInf(v, 0) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: v}
	}
	line := charts.NewLine()
	line.SetXAxis(xs).AddSeries(fmt.Sprintf("%s%d", name, period), data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 1}),
	)
	return line
}

func (ch *Chart) overlays(xs []string, points []chart.EnginePoint) []*charts.Line {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	var out []*charts.Line
	if l := movingAverage(xs, closes, "SMA", ch.cfg.SMAPeriod, talib.Sma, smaColor); l != nil {
		out = append(out, l)
	}
	if l := movingAverage(xs, closes, "EMA", ch.cfg.EMAPeriod, talib.Ema, emaColor); l != nil {
		out = append(out, l)
	}
	return out
}

// Series holds the candlestick data of a chart.
type Series struct {
	mu     sync.Mutex
	style  chart.SeriesStyle
	points []chart.EnginePoint
}

// SetData replaces the data. Points must be ascending by time; points that
// share a time collapse onto the last one.
func (s *Series) SetData(points []chart.EnginePoint) error {
	out := make([]chart.EnginePoint, 0, len(points))
	for i, p := range points {
		n := len(out)
		if n > 0 && p.Time < out[n-1].Time {
			return fmt.Errorf("%w: index %d", errUnordered, i)
		}
		if n > 0 && p.Time == out[n-1].Time {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	s.mu.Lock()
	s.points = out
	s.mu.Unlock()
	return nil
}

// Points returns a copy of the current data.
func (s *Series) Points() []chart.EnginePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chart.EnginePoint, len(s.points))
	copy(out, s.points)
	return out
}

func crosshairType(c chart.CrosshairOptions) string {
	if c.Mode == chart.CrosshairNormal {
		return "cross"
	}
	return "line"
}

func percent(v float64) string {
	return fmt.Sprintf("%g%%", v*100)
}
