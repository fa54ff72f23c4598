package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Candle 是行情源返回的完整 K 线（毫秒时间戳）。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Point 把完整 K 线转换为图表输入点，时间取开盘时间。
func (c Candle) Point() PricePoint {
	return PricePoint{
		Time:  time.UnixMilli(c.OpenTime),
		Open:  Price(c.Open),
		High:  Price(c.High),
		Low:   Price(c.Low),
		Close: Price(c.Close),
	}
}

// Points converts candles in order.
func Points(cs []Candle) []PricePoint {
	out := make([]PricePoint, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Point())
	}
	return out
}

// PricePoint 是价格图的原始输入点。OHLC 任一字段可能缺失（nil），
// 缺失点由图表归一化阶段剔除，这里不做校验。
type PricePoint struct {
	Time  time.Time `json:"time"`
	Open  *float64  `json:"open"`
	High  *float64  `json:"high"`
	Low   *float64  `json:"low"`
	Close *float64  `json:"close"`
}

// Price returns a pointer to v, for building PricePoint literals.
func Price(v float64) *float64 { return &v }

// Complete 报告四个价格字段是否都存在。
func (p PricePoint) Complete() bool {
	return p.Open != nil && p.High != nil && p.Low != nil && p.Close != nil
}

type wirePoint struct {
	Time  json.RawMessage `json:"time"`
	Open  json.RawMessage `json:"open"`
	High  json.RawMessage `json:"high"`
	Low   json.RawMessage `json:"low"`
	Close json.RawMessage `json:"close"`
}

// UnmarshalJSON 接受数字或数字字符串形式的价格，时间接受 RFC3339 字符串或毫秒时间戳。
// 无法解析的价格按缺失处理，而不是报错。
func (p *PricePoint) UnmarshalJSON(b []byte) error {
	var w wirePoint
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := parseTime(w.Time)
	if err != nil {
		return err
	}
	*p = PricePoint{
		Time:  ts,
		Open:  parsePrice(w.Open),
		High:  parsePrice(w.High),
		Low:   parsePrice(w.Low),
		Close: parsePrice(w.Close),
	}
	return nil
}

func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time  string   `json:"time"`
		Open  *float64 `json:"open"`
		High  *float64 `json:"high"`
		Low   *float64 `json:"low"`
		Close *float64 `json:"close"`
	}{
		Time:  p.Time.UTC().Format(time.RFC3339Nano),
		Open:  p.Open,
		High:  p.High,
		Low:   p.Low,
		Close: p.Close,
	})
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(s)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid time %s: %w", raw, err)
	}
	whole, frac := math.Modf(ms)
	return time.UnixMilli(int64(whole)).Add(time.Duration(frac * float64(time.Millisecond))), nil
}

func parsePrice(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
