package chart

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	tooltipTop    = 20
	tooltipRight  = 15
	tooltipLeft   = 195
	timeLayout    = "Jan 2, 03:04 PM"
	axisPrecision = 6
)

// Tooltip is the hover panel content of the fallback renderer.
type Tooltip struct {
	Left        float64
	Top         float64
	Time        string
	Open        string
	High        string
	Low         string
	Close       string
	Change      string
	ChangeColor string
}

// NewTooltip builds the panel for h; it flips to the left of the cursor once
// the hovered x passes the middle of the surface.
func NewTooltip(g Geometry, h *HoverState, loc *time.Location) *Tooltip {
	if h == nil {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	left := h.X + tooltipRight
	if h.X >= g.Width/2 {
		left = h.X - tooltipLeft
	}
	p := h.Point
	return &Tooltip{
		Left:        left,
		Top:         tooltipTop,
		Time:        p.Time.In(loc).Format(timeLayout),
		Open:        formatValue(p.Open),
		High:        formatValue(p.High),
		Low:         formatValue(p.Low),
		Close:       formatValue(p.Close),
		Change:      FormatChange(p),
		ChangeColor: directionColor(p.Up()),
	}
}

// FormatChange renders the signed percentage change with two decimals.
// Halves round away from zero.
func FormatChange(p Point) string {
	pct, ok := p.ChangePct()
	if !ok {
		return "n/a"
	}
	s := decimal.NewFromFloat(pct).StringFixed(2) + "%"
	if p.Up() {
		return "+" + s
	}
	return s
}

// FormatAxis renders a gridline price label.
func FormatAxis(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(axisPrecision)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func directionColor(up bool) string {
	if up {
		return ColorUp
	}
	return ColorDown
}
