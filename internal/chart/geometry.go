package chart

import "math"

const (
	DefaultWidth = 760
	Height       = 300

	tickCount     = 5
	gridEvery     = 10
	minInner      = 10.0
	minCandle     = 3.0
	maxCandle     = 16.0
	bodyMinHeight = 2.0
)

// Padding is the plot margin inside the drawing surface.
type Padding struct {
	Left, Right, Top, Bottom float64
}

var DefaultPadding = Padding{Left: 60, Right: 10, Top: 15, Bottom: 30}

// Scale is the vertical price domain of a working series.
type Scale struct {
	Min   float64
	Max   float64
	Range float64
}

// ComputeScale returns the min/max over every OHLC value. Range is max-min,
// or max when the series is flat, or 1 when that is zero too.
func ComputeScale(ws []Point) (Scale, bool) {
	if len(ws) == 0 {
		return Scale{}, false
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range ws {
		for _, v := range [4]float64{p.Open, p.High, p.Low, p.Close} {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	r := hi - lo
	if r == 0 {
		r = hi
	}
	if r <= 0 {
		r = 1
	}
	return Scale{Min: lo, Max: hi, Range: r}, true
}

// Geometry holds every derived measurement of one fallback draw pass.
type Geometry struct {
	Width         float64
	Height        float64
	Pad           Padding
	InnerWidth    float64
	InnerHeight   float64
	Scale         Scale
	Count         int
	CandleSpacing float64
	CandleWidth   float64
	WickWidth     float64
}

// NewGeometry lays ws out on a surface of the given pixel width (DefaultWidth
// when width <= 0) and the fixed chart height.
func NewGeometry(width int, ws []Point) Geometry {
	if width <= 0 {
		width = DefaultWidth
	}
	g := Geometry{
		Width:  float64(width),
		Height: Height,
		Pad:    DefaultPadding,
		Count:  len(ws),
	}
	g.InnerWidth = math.Max(minInner, g.Width-g.Pad.Left-g.Pad.Right)
	g.InnerHeight = math.Max(minInner, g.Height-g.Pad.Top-g.Pad.Bottom)
	g.Scale, _ = ComputeScale(ws)
	if g.Scale.Range == 0 {
		g.Scale.Range = 1
	}
	if g.Count > 0 {
		g.CandleSpacing = g.InnerWidth / float64(g.Count)
		g.CandleWidth = math.Max(minCandle, math.Min(maxCandle, g.CandleSpacing*0.85))
		g.WickWidth = math.Max(1, g.CandleWidth*0.12)
	}
	return g
}

// PriceToY maps a price to screen space; higher prices get smaller y.
func (g Geometry) PriceToY(price float64) float64 {
	ratio := (price - g.Scale.Min) / g.Scale.Range
	return g.Pad.Top + (1-ratio)*g.InnerHeight
}

// CandleX is the center x of candle i.
func (g Geometry) CandleX(i int) float64 {
	return g.Pad.Left + (float64(i)+0.5)*g.CandleSpacing
}

// IndexAt maps a surface x to a candle index in [0, Count).
func (g Geometry) IndexAt(x float64) (int, bool) {
	if g.Count == 0 || g.CandleSpacing <= 0 {
		return 0, false
	}
	f := math.Floor((x - g.Pad.Left) / g.CandleSpacing)
	if math.IsNaN(f) || f < 0 || f >= float64(g.Count) {
		return 0, false
	}
	return int(f), true
}

// CandleShape is the screen-space form of one candle.
type CandleShape struct {
	X          float64
	BodyLeft   float64
	BodyTop    float64
	BodyWidth  float64
	BodyHeight float64
	WickTop    float64
	WickBottom float64
	Up         bool
}

func (g Geometry) Candle(i int, p Point) CandleShape {
	x := g.CandleX(i)
	yOpen, yClose := g.PriceToY(p.Open), g.PriceToY(p.Close)
	return CandleShape{
		X:          x,
		BodyLeft:   x - g.CandleWidth/2,
		BodyTop:    math.Min(yOpen, yClose),
		BodyWidth:  g.CandleWidth,
		BodyHeight: math.Max(bodyMinHeight, math.Abs(yClose-yOpen)),
		WickTop:    g.PriceToY(p.High),
		WickBottom: g.PriceToY(p.Low),
		Up:         p.Up(),
	}
}

// Tick is one horizontal gridline.
type Tick struct {
	Value float64
	Y     float64
}

// Ticks returns tickCount+1 gridlines from Max down to Min.
func (g Geometry) Ticks() []Tick {
	out := make([]Tick, 0, tickCount+1)
	for i := tickCount; i >= 0; i-- {
		v := g.Scale.Min + float64(i)/tickCount*g.Scale.Range
		out = append(out, Tick{Value: v, Y: g.PriceToY(v)})
	}
	return out
}

// TimeGridXs returns one vertical gridline per full block of gridEvery candles.
func (g Geometry) TimeGridXs() []float64 {
	n := g.Count / gridEvery
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Pad.Left+float64(i*gridEvery+gridEvery/2)*g.CandleSpacing)
	}
	return out
}

// PlotBottom is the y of the lower plot edge.
func (g Geometry) PlotBottom() float64 { return g.Height - g.Pad.Bottom }

// PlotRight is the x of the right plot edge.
func (g Geometry) PlotRight() float64 { return g.Width - g.Pad.Right }
