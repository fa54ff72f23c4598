package chart

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"pricechart/internal/chart/ui"
)

const (
	labelSize     = 11
	labelOffsetX  = 8
	labelOffsetY  = 4
	candleOpacity = 0.95
	crossOpacity  = 0.5
	noDataMessage = "No data available"
)

var crossDash = []float64{4, 4}

// DrawCandles issues every draw call of one fallback pass: background,
// price gridlines with labels, time gridlines, candles, then the crosshair.
func DrawCandles(cv Canvas, g Geometry, ws []Point, hover *HoverState) {
	cv.Rect(0, 0, g.Width, g.Height, ColorBackground, 1)

	for _, t := range g.Ticks() {
		cv.Line(g.Pad.Left, t.Y, g.PlotRight(), t.Y, ColorGrid, 1, 1, nil)
		cv.Text(g.Pad.Left-labelOffsetX, t.Y+labelOffsetY, FormatAxis(t.Value), ColorAxisText, labelSize, AlignEnd)
	}
	for _, x := range g.TimeGridXs() {
		cv.Line(x, g.Pad.Top, x, g.PlotBottom(), ColorGrid, 1, 1, nil)
	}

	for i, p := range ws {
		s := g.Candle(i, p)
		color := directionColor(s.Up)
		opacity := candleOpacity
		if hover != nil && hover.Index == i {
			opacity = 1
		}
		cv.Line(s.X, s.WickTop, s.X, s.WickBottom, color, g.WickWidth, opacity, nil)
		cv.Rect(s.BodyLeft, s.BodyTop, s.BodyWidth, s.BodyHeight, color, opacity)
	}

	if hover != nil {
		cv.Line(hover.X, g.Pad.Top, hover.X, g.PlotBottom(), ColorAxisText, 1, crossOpacity, crossDash)
	}
}

type fallbackRenderer struct {
	loc    *time.Location
	points []Point
}

func newFallback(loc *time.Location) *fallbackRenderer {
	return &fallbackRenderer{loc: loc}
}

func (f *fallbackRenderer) Kind() StrategyKind { return StrategyFallback }

func (f *fallbackRenderer) SetSeries(ws []Point) error {
	f.points = ws
	return nil
}

type fallbackPage struct {
	ID      string
	Width   int
	Height  int
	SVG     template.HTML
	Tooltip *Tooltip
}

type placeholderPage struct {
	Message string
	Error   string
}

func (f *fallbackRenderer) Draw(w io.Writer, v View) error {
	if len(f.points) == 0 {
		return renderPlaceholder(w, v.LoadErr)
	}
	g := NewGeometry(v.Width, f.points)
	cv, err := NewSVGCanvas(int(g.Width), int(g.Height))
	if err != nil {
		return err
	}
	DrawCandles(cv, g, f.points, v.Hover)
	var svg bytes.Buffer
	if err := cv.Save(&svg); err != nil {
		return fmt.Errorf("encode svg: %w", err)
	}
	return ui.Templates().ExecuteTemplate(w, "fallback.html", fallbackPage{
		ID:      v.ID,
		Width:   int(g.Width),
		Height:  int(g.Height),
		SVG:     template.HTML(svg.String()),
		Tooltip: NewTooltip(g, v.Hover, f.loc),
	})
}

// RenderPNG rasterises the fallback drawing of ws; no tooltip panel is drawn.
func RenderPNG(w io.Writer, ws []Point, width int, hover *HoverState) error {
	if len(ws) == 0 {
		return fmt.Errorf("no data to render")
	}
	g := NewGeometry(width, ws)
	cv, err := NewPNGCanvas(int(g.Width), int(g.Height))
	if err != nil {
		return err
	}
	DrawCandles(cv, g, ws, hover)
	return cv.Save(w)
}

// RenderSVG writes the bare fallback drawing of ws as an SVG document.
func RenderSVG(w io.Writer, ws []Point, width int, hover *HoverState) error {
	if len(ws) == 0 {
		return fmt.Errorf("no data to render")
	}
	g := NewGeometry(width, ws)
	cv, err := NewSVGCanvas(int(g.Width), int(g.Height))
	if err != nil {
		return err
	}
	DrawCandles(cv, g, ws, hover)
	return cv.Save(w)
}

func (f *fallbackRenderer) Close() error { return nil }

func renderPlaceholder(w io.Writer, loadErr error) error {
	page := placeholderPage{Message: noDataMessage}
	if loadErr != nil {
		page.Error = loadErr.Error()
	}
	return ui.Templates().ExecuteTemplate(w, "placeholder.html", page)
}

func renderPending(w io.Writer, id string) error {
	return ui.Templates().ExecuteTemplate(w, "pending.html", struct{ ID string }{ID: id})
}
