package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"

	"pricechart/internal/logger"
	"pricechart/internal/market"
)

const maxHistoryLimit = 1500

// Source 实现了 market.Source 与 market.Streamer：REST 走 go-binance 期货客户端，
// 实时 K 线走组合流 WS。
type Source struct {
	cfg    Config
	client *futures.Client
	dialer *websocket.Dialer

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextSub int
	stats   market.SourceStats
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimRight(final.RESTBaseURL, "/")
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{
		cfg:     final,
		client:  client,
		dialer:  &websocket.Dialer{HandshakeTimeout: final.HTTPTimeout},
		cancels: make(map[int]context.CancelFunc),
	}, nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	// 区分大小写："1M" 是月线。
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	logger.Debugf("[binance] REST klines %s %s limit=%d", symbol, interval, limit)
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance history %s %s: %w", symbol, interval, err)
	}
	out := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			Trades:    k.TradeNum,
		})
	}
	return out, nil
}

func (s *Source) Stats() market.SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close 结束所有实时订阅。
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	return nil
}

func (s *Source) track(cancel context.CancelFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.cancels[id] = cancel
	return id
}

func (s *Source) untrack(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, id)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
