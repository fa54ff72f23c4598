package chart

import (
	"fmt"
	"io"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

type TextAlign int

const (
	AlignStart TextAlign = iota
	AlignEnd
)

// Canvas receives the fallback renderer's draw calls.
type Canvas interface {
	Rect(x, y, w, h float64, fill string, opacity float64)
	Line(x1, y1, x2, y2 float64, stroke string, width, opacity float64, dash []float64)
	Text(x, y float64, body, fill string, sizePx float64, align TextAlign)
}

// RendererCanvas draws through a go-chart renderer (SVG or PNG).
type RendererCanvas struct {
	r gochart.Renderer
}

func NewSVGCanvas(width, height int) (*RendererCanvas, error) {
	return newRendererCanvas(gochart.SVG, width, height)
}

func NewPNGCanvas(width, height int) (*RendererCanvas, error) {
	return newRendererCanvas(gochart.PNG, width, height)
}

func newRendererCanvas(provider gochart.RendererProvider, width, height int) (*RendererCanvas, error) {
	r, err := provider(width, height)
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	f, err := gochart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("load default font: %w", err)
	}
	r.SetFont(f)
	return &RendererCanvas{r: r}, nil
}

func (c *RendererCanvas) Rect(x, y, w, h float64, fill string, opacity float64) {
	c.r.ResetStyle()
	c.r.SetStrokeWidth(0)
	c.r.SetFillColor(colorOf(fill, opacity))
	x0, y0 := px(x), px(y)
	x1, y1 := px(x+w), px(y+h)
	c.r.MoveTo(x0, y0)
	c.r.LineTo(x1, y0)
	c.r.LineTo(x1, y1)
	c.r.LineTo(x0, y1)
	c.r.Close()
	c.r.Fill()
}

func (c *RendererCanvas) Line(x1, y1, x2, y2 float64, stroke string, width, opacity float64, dash []float64) {
	c.r.ResetStyle()
	c.r.SetStrokeColor(colorOf(stroke, opacity))
	c.r.SetStrokeWidth(width)
	if len(dash) > 0 {
		c.r.SetStrokeDashArray(dash)
	}
	c.r.MoveTo(px(x1), px(y1))
	c.r.LineTo(px(x2), px(y2))
	c.r.Stroke()
}

func (c *RendererCanvas) Text(x, y float64, body, fill string, sizePx float64, align TextAlign) {
	c.r.ResetStyle()
	c.r.SetFontColor(colorOf(fill, 1))
	// go-chart sizes fonts in points.
	c.r.SetFontSize(sizePx * 72 / c.r.GetDPI())
	if align == AlignEnd {
		x -= float64(c.r.MeasureText(body).Width())
	}
	c.r.Text(body, px(x), px(y))
}

// Save flushes the drawing to w.
func (c *RendererCanvas) Save(w io.Writer) error {
	return c.r.Save(w)
}

func colorOf(hex string, opacity float64) drawing.Color {
	col := drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
	if opacity < 1 {
		col = col.WithAlpha(uint8(math.Round(math.Max(0, opacity) * 255)))
	}
	return col
}

func px(v float64) int { return int(math.Round(v)) }
