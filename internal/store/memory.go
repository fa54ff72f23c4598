package store

import (
	"context"
	"sort"
	"sync"

	"pricechart/internal/market"
)

// MemoryStore 内存实现
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Key][]market.PricePoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Key][]market.PricePoint)}
}

// Put 合并并裁剪
func (s *MemoryStore) Put(ctx context.Context, symbol, interval string, pts []market.PricePoint, max int) error {
	symbol, interval, err := normalizeKey(symbol, interval)
	if err != nil {
		return err
	}
	if len(pts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := Key{Symbol: symbol, Interval: interval}
	s.data[k] = merge(s.data[k], pts, max)
	return nil
}

// Get 返回拷贝
func (s *MemoryStore) Get(ctx context.Context, symbol, interval string) ([]market.PricePoint, error) {
	symbol, interval, err := normalizeKey(symbol, interval)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[Key{Symbol: symbol, Interval: interval}]
	out := make([]market.PricePoint, len(cur))
	copy(out, cur)
	return out, nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Key, 0, len(s.data))
	for k, pts := range s.data {
		k.Points = len(pts)
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Interval < out[j].Interval
	})
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
