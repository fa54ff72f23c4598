package chart

import (
	"slices"
	"time"

	"pricechart/internal/market"
)

// Point is one validated OHLC sample of the working series.
type Point struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Up reports the candle direction; an unchanged candle counts as up.
func (p Point) Up() bool { return p.Close >= p.Open }

// ChangePct returns (close-open)/open*100. ok is false when open is zero.
func (p Point) ChangePct() (pct float64, ok bool) {
	if p.Open == 0 {
		return 0, false
	}
	return (p.Close - p.Open) / p.Open * 100, true
}

// EnginePoint is the integer-second form handed to the primary engine.
type EnginePoint struct {
	Time  int64
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Normalize builds the working series: points missing any of open/high/low/close
// are dropped, the rest are stably sorted by time ascending.
func Normalize(raw []market.PricePoint) []Point {
	out := make([]Point, 0, len(raw))
	for _, p := range raw {
		if !p.Complete() {
			continue
		}
		out = append(out, Point{
			Time:  p.Time,
			Open:  *p.Open,
			High:  *p.High,
			Low:   *p.Low,
			Close: *p.Close,
		})
	}
	slices.SortStableFunc(out, func(a, b Point) int { return a.Time.Compare(b.Time) })
	return out
}

// EnginePoints floors each timestamp to whole seconds. Points sharing a second
// are all kept; collapsing them is left to the engine.
func EnginePoints(ws []Point) []EnginePoint {
	out := make([]EnginePoint, len(ws))
	for i, p := range ws {
		out[i] = EnginePoint{
			Time:  wholeSeconds(p.Time),
			Open:  p.Open,
			High:  p.High,
			Low:   p.Low,
			Close: p.Close,
		}
	}
	return out
}

// time.Unix floors: the nanosecond part is always normalised to [0, 1e9).
func wholeSeconds(t time.Time) int64 { return t.Unix() }

// Report 描述一次归一化的结果，仅用于诊断输出。
type Report struct {
	Input            int   `json:"input"`
	Kept             int   `json:"kept"`
	Dropped          []int `json:"dropped"`
	Reordered        bool  `json:"reordered"`
	SecondCollisions int   `json:"second_collisions"`
}

// Inspect normalizes raw and reports what the normalization changed.
func Inspect(raw []market.PricePoint) Report {
	rep := Report{Input: len(raw)}
	var prev time.Time
	seen := false
	for i, p := range raw {
		if !p.Complete() {
			rep.Dropped = append(rep.Dropped, i)
			continue
		}
		if seen && p.Time.Before(prev) {
			rep.Reordered = true
		}
		prev, seen = p.Time, true
	}
	ep := EnginePoints(Normalize(raw))
	rep.Kept = len(ep)
	for i := 1; i < len(ep); i++ {
		if ep[i].Time == ep[i-1].Time {
			rep.SecondCollisions++
		}
	}
	return rep
}
