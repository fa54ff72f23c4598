package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pricechart/internal/config"
	"pricechart/internal/market"
	"pricechart/internal/store"
)

// fakeSource 按 symbol 返回固定 K 线，并记录调用次数。
type fakeSource struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	events chan market.CandleEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	f.mu.Lock()
	f.calls[symbol+"@"+interval]++
	err := f.fail[symbol]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, limit)
	for i := range out {
		v := float64(100 + i)
		out[i] = market.Candle{OpenTime: int64(i) * 60_000, Open: v, High: v + 1, Low: v - 1, Close: v + 0.5}
	}
	return out, nil
}

func (f *fakeSource) Subscribe(ctx context.Context, symbols, intervals []string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	return f.events, nil
}

func (f *fakeSource) Stats() market.SourceStats { return market.SourceStats{} }

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func TestParseTargets(t *testing.T) {
	got, err := ParseTargets([]string{"btcusdt", "ETHUSDT@1h", " ", "BTCUSDT"}, "15m")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0] != (Target{"BTCUSDT", "15m"}) || got[1] != (Target{"ETHUSDT", "1h"}) {
		t.Fatalf("unexpected targets %+v", got)
	}
	if _, err := ParseTargets([]string{"@1m"}, "15m"); err == nil {
		t.Fatalf("expected error for missing symbol")
	}
}

func TestRefreshOnceWritesEveryTarget(t *testing.T) {
	src := newFakeSource()
	src.fail["BADUSDT"] = errors.New("symbol not found")
	st := store.NewMemoryStore()
	r, err := New(src, st, config.IngestConfig{Targets: []string{"BTCUSDT", "ETHUSDT@1h", "BADUSDT"}, Interval: "1m", Limit: 5}, 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = r.RefreshOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "BADUSDT@1m") {
		t.Fatalf("expected BADUSDT failure, got %v", err)
	}
	btc, _ := st.Get(context.Background(), "BTCUSDT", "1m")
	if len(btc) != 3 {
		t.Fatalf("expected series trimmed to 3, got %d", len(btc))
	}
	if *btc[2].Close != 104.5 {
		t.Fatalf("expected newest close 104.5, got %v", *btc[2].Close)
	}
	eth, _ := st.Get(context.Background(), "ETHUSDT", "1h")
	if len(eth) != 3 {
		t.Fatalf("expected eth series, got %d", len(eth))
	}
}

func TestRunRefreshesImmediatelyAndStops(t *testing.T) {
	src := newFakeSource()
	st := store.NewMemoryStore()
	r, err := New(src, st, config.IngestConfig{Cron: "@every 1h", Targets: []string{"BTCUSDT"}, Interval: "1m", Limit: 2}, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for src.count("BTCUSDT@1m") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("initial refresh never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRunRejectsBadSpec(t *testing.T) {
	r, _ := New(newFakeSource(), store.NewMemoryStore(), config.IngestConfig{Cron: "not a spec", Targets: []string{"BTCUSDT"}, Interval: "1m"}, 10)
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestFollowStoresWantedEvents(t *testing.T) {
	src := newFakeSource()
	src.events = make(chan market.CandleEvent, 3)
	st := store.NewMemoryStore()
	r, _ := New(src, st, config.IngestConfig{Targets: []string{"BTCUSDT@1m"}, Interval: "1m"}, 10)

	src.events <- market.CandleEvent{Symbol: "BTCUSDT", Interval: "1m", Candle: market.Candle{OpenTime: 60_000, Open: 1, High: 2, Low: 0.5, Close: 1.5}}
	src.events <- market.CandleEvent{Symbol: "BTCUSDT", Interval: "1m", Candle: market.Candle{OpenTime: 60_000, Open: 1, High: 2.5, Low: 0.5, Close: 2.2}}
	src.events <- market.CandleEvent{Symbol: "DOGEUSDT", Interval: "1m", Candle: market.Candle{OpenTime: 60_000, Open: 1, High: 1, Low: 1, Close: 1}}
	close(src.events)

	if err := r.Follow(context.Background(), src); err != nil {
		t.Fatalf("follow: %v", err)
	}
	pts, _ := st.Get(context.Background(), "BTCUSDT", "1m")
	if len(pts) != 1 || *pts[0].Close != 2.2 {
		t.Fatalf("live updates should replace the open candle, got %+v", pts)
	}
	keys, _ := st.Keys(context.Background())
	if len(keys) != 1 {
		t.Fatalf("unwanted symbols must be ignored, got %+v", keys)
	}
}

type fakeSymbols struct {
	list []string
	err  error
}

func (f fakeSymbols) Name() string { return "fake" }

func (f fakeSymbols) List(context.Context) ([]string, error) { return f.list, f.err }

func TestResolveMergesDynamicSymbols(t *testing.T) {
	r, err := New(newFakeSource(), store.NewMemoryStore(), config.IngestConfig{Targets: []string{"BTCUSDT", "ETHUSDT@1h"}, Interval: "1m"}, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r.WithSymbols(fakeSymbols{list: []string{"BTCUSDT", "SOLUSDT"}}, false)
	got := r.Resolve(context.Background())
	want := []Target{{"BTCUSDT", "1m"}, {"ETHUSDT", "1h"}, {"SOLUSDT", "1m"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %+v want %+v", got, want)
		}
	}

	r.WithSymbols(fakeSymbols{list: []string{"SOLUSDT"}}, true)
	if got := r.Resolve(context.Background()); len(got) != 1 || got[0] != (Target{"SOLUSDT", "1m"}) {
		t.Fatalf("override should replace static targets, got %+v", got)
	}

	r.WithSymbols(fakeSymbols{err: errors.New("api down")}, true)
	if got := r.Resolve(context.Background()); len(got) != 2 {
		t.Fatalf("failing provider should fall back to static targets, got %+v", got)
	}
}

func TestRefreshOnceUsesDynamicTargets(t *testing.T) {
	src := newFakeSource()
	st := store.NewMemoryStore()
	r, err := New(src, st, config.IngestConfig{TargetsURL: "http://127.0.0.1:0/none", Interval: "5m", Limit: 2}, 10)
	if err != nil {
		t.Fatalf("new with targets_url only: %v", err)
	}
	r.WithSymbols(fakeSymbols{list: []string{"XRPUSDT"}}, false)
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if src.count("XRPUSDT@5m") != 1 {
		t.Fatalf("dynamic target was not fetched")
	}
	if _, err := New(src, st, config.IngestConfig{Interval: "1m"}, 10); err == nil {
		t.Fatalf("expected error without any targets")
	}
}
