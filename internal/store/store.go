package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"pricechart/internal/config"
	"pricechart/internal/market"
)

// DefaultMaxPoints 是单条序列默认保留的点数上限。
const DefaultMaxPoints = 1000

var errEmptyKey = errors.New("symbol/interval 不能为空")

// SeriesStore 抽象：按 symbol+interval 读写价格序列。
// 同一时间戳（毫秒精度）的点覆盖旧值，超出 max 时只保留最新的点。
type SeriesStore interface {
	Put(ctx context.Context, symbol, interval string, pts []market.PricePoint, max int) error
	Get(ctx context.Context, symbol, interval string) ([]market.PricePoint, error)
	Keys(ctx context.Context) ([]Key, error)
	Close() error
}

// Key identifies one stored series.
type Key struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Points   int    `json:"points"`
}

func (k Key) String() string { return k.Symbol + "@" + k.Interval }

// Open 按配置创建存储。
func Open(cfg config.StoreConfig) (SeriesStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func normalizeKey(symbol, interval string) (string, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = strings.TrimSpace(interval)
	if symbol == "" || interval == "" {
		return "", "", errEmptyKey
	}
	return symbol, interval, nil
}

// merge 合并 cur 与 incoming：按毫秒时间戳去重（后者覆盖），升序，裁剪到 max。
func merge(cur, incoming []market.PricePoint, max int) []market.PricePoint {
	if max <= 0 {
		max = DefaultMaxPoints
	}
	byMs := make(map[int64]market.PricePoint, len(cur)+len(incoming))
	for _, p := range cur {
		byMs[p.Time.UnixMilli()] = p
	}
	for _, p := range incoming {
		byMs[p.Time.UnixMilli()] = p
	}
	out := make([]market.PricePoint, 0, len(byMs))
	for _, p := range byMs {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b market.PricePoint) int {
		return a.Time.Compare(b.Time)
	})
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
