// Package inspect 以表格/CSV 形式输出价格图的工作序列，供 CLI 排查数据问题。
package inspect

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"pricechart/internal/chart"
	"pricechart/internal/market"
)

const (
	// PrecisionAuto 根据价格区间自动决定精度。
	PrecisionAuto = math.MinInt32
	// PrecisionRaw 保留原始精度。
	PrecisionRaw = -1

	timeLayout = "2006-01-02 15:04:05"
)

// Options 控制时间格式与价格精度。
type Options struct {
	Location       *time.Location
	PricePrecision int
	// Limit > 0 时只输出最新的 Limit 行。
	Limit int
}

func (o Options) withDefaults(ws []chart.Point) Options {
	out := o
	if out.Location == nil {
		out.Location = time.UTC
	}
	if out.PricePrecision == PrecisionAuto {
		out.PricePrecision = autoPrecision(ws)
	}
	return out
}

// Table 归一化 raw，输出工作序列表格，并在表尾附上归一化报告。
func Table(w io.Writer, title string, raw []market.PricePoint, opts Options) error {
	ws := chart.Normalize(raw)
	rep := chart.Inspect(raw)
	opts = opts.withDefaults(ws)

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{"#", "Time", "Open", "High", "Low", "Close", "Change", "Dir"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	start := tail(len(ws), opts.Limit)
	for i := start; i < len(ws); i++ {
		p := ws[i]
		t.AppendRow(table.Row{
			i,
			p.Time.In(opts.Location).Format(timeLayout),
			formatPrice(p.Open, opts.PricePrecision),
			formatPrice(p.High, opts.PricePrecision),
			formatPrice(p.Low, opts.PricePrecision),
			formatPrice(p.Close, opts.PricePrecision),
			chart.FormatChange(p),
			direction(p),
		})
	}
	t.SetCaption("%s", Summary(rep))
	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}

// Summary 把归一化报告压成一行。
func Summary(rep chart.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "input=%d kept=%d dropped=%d", rep.Input, rep.Kept, len(rep.Dropped))
	if len(rep.Dropped) > 0 {
		idx := make([]string, 0, len(rep.Dropped))
		for _, i := range rep.Dropped {
			idx = append(idx, strconv.Itoa(i))
		}
		b.WriteString(" [" + strings.Join(idx, ",") + "]")
	}
	if rep.Reordered {
		b.WriteString(" reordered")
	}
	if rep.SecondCollisions > 0 {
		fmt.Fprintf(&b, " same-second=%d", rep.SecondCollisions)
	}
	return b.String()
}

// CSV 输出工作序列，首行包含列头。
func CSV(w io.Writer, raw []market.PricePoint, opts Options) error {
	ws := chart.Normalize(raw)
	opts = opts.withDefaults(ws)
	var b strings.Builder
	b.WriteString("Time,O,H,L,C,Change\n")
	for _, p := range ws[tail(len(ws), opts.Limit):] {
		b.WriteString(p.Time.In(opts.Location).Format(time.RFC3339))
		b.WriteByte(',')
		b.WriteString(formatPrice(p.Open, opts.PricePrecision))
		b.WriteByte(',')
		b.WriteString(formatPrice(p.High, opts.PricePrecision))
		b.WriteByte(',')
		b.WriteString(formatPrice(p.Low, opts.PricePrecision))
		b.WriteByte(',')
		b.WriteString(formatPrice(p.Close, opts.PricePrecision))
		b.WriteByte(',')
		b.WriteString(chart.FormatChange(p))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func tail(n, limit int) int {
	if limit > 0 && n > limit {
		return n - limit
	}
	return 0
}

func direction(p chart.Point) string {
	if p.Up() {
		return "up"
	}
	return "down"
}

func autoPrecision(ws []chart.Point) int {
	maxVal := 0.0
	for _, p := range ws {
		for _, v := range []float64{p.Open, p.High, p.Low, p.Close} {
			maxVal = math.Max(maxVal, math.Abs(v))
		}
	}
	switch {
	case maxVal >= 1000:
		return 1
	case maxVal >= 100:
		return 2
	default:
		return PrecisionRaw
	}
}

func formatPrice(value float64, precision int) string {
	if precision == PrecisionRaw {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	s := strconv.FormatFloat(value, 'f', precision, 64)
	if precision > 0 {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
