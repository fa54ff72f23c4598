package chart

// Palette shared by both renderers.
const (
	ColorBackground  = "#000000"
	ColorUp          = "#089981"
	ColorDown        = "#f23645"
	ColorGrid        = "#1e222d"
	ColorAxisText    = "#787b86"
	ColorBorder      = "#2b2b43"
	ColorCrosshairBG = "#363a45"
	ColorTooltipText = "#d1d4dc"
)

// Line styles as understood by the primary engine.
const (
	LineSolid  = 0
	LineDashed = 3

	CrosshairNormal = 1
)

type LayoutOptions struct {
	Background string
	TextColor  string
}

type GridLineOptions struct {
	Color string
	Style int
}

type GridOptions struct {
	VertLines GridLineOptions
	HorzLines GridLineOptions
}

type CrosshairLineOptions struct {
	Width                int
	Color                string
	Style                int
	LabelBackgroundColor string
}

type CrosshairOptions struct {
	Mode     int
	VertLine CrosshairLineOptions
	HorzLine CrosshairLineOptions
}

type ScaleMargins struct {
	Top    float64
	Bottom float64
}

type PriceScaleOptions struct {
	Visible     bool
	BorderColor string
	TextColor   string
	Margins     ScaleMargins
}

type TimeScaleOptions struct {
	TimeVisible    bool
	SecondsVisible bool
	BorderColor    string
	TextColor      string
}

// ChartOptions is the creation/patch option set of an engine chart.
// In ApplyOptions a zero field leaves the current value in place.
type ChartOptions struct {
	Width           int
	Height          int
	Layout          LayoutOptions
	Grid            GridOptions
	Crosshair       CrosshairOptions
	RightPriceScale PriceScaleOptions
	TimeScale       TimeScaleOptions
}

// SeriesStyle is the candlestick series style.
type SeriesStyle struct {
	UpColor          string
	DownColor        string
	BorderUpColor    string
	BorderDownColor  string
	WickUpColor      string
	WickDownColor    string
	PriceLineVisible bool
	BorderVisible    bool
}

// DarkChartOptions is the fixed dark theme; only Width varies.
func DarkChartOptions(width int) ChartOptions {
	crossLine := CrosshairLineOptions{
		Width:                1,
		Color:                ColorAxisText,
		Style:                LineDashed,
		LabelBackgroundColor: ColorCrosshairBG,
	}
	return ChartOptions{
		Width:  width,
		Height: Height,
		Layout: LayoutOptions{Background: ColorBackground, TextColor: ColorAxisText},
		Grid: GridOptions{
			VertLines: GridLineOptions{Color: ColorGrid, Style: LineSolid},
			HorzLines: GridLineOptions{Color: ColorGrid, Style: LineSolid},
		},
		Crosshair: CrosshairOptions{Mode: CrosshairNormal, VertLine: crossLine, HorzLine: crossLine},
		RightPriceScale: PriceScaleOptions{
			Visible:     true,
			BorderColor: ColorBorder,
			TextColor:   ColorAxisText,
			Margins:     ScaleMargins{Top: 0.1, Bottom: 0.1},
		},
		TimeScale: TimeScaleOptions{
			TimeVisible:    true,
			SecondsVisible: false,
			BorderColor:    ColorBorder,
			TextColor:      ColorAxisText,
		},
	}
}

// DarkSeriesStyle is the fixed candlestick style.
func DarkSeriesStyle() SeriesStyle {
	return SeriesStyle{
		UpColor:         ColorUp,
		DownColor:       ColorDown,
		BorderUpColor:   ColorUp,
		BorderDownColor: ColorDown,
		WickUpColor:     ColorUp,
		WickDownColor:   ColorDown,
	}
}
