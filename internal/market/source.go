package market

import "context"

// CandleEvent 封装了来源于外部行情源的单根 K 线。
type CandleEvent struct {
	Symbol   string
	Interval string
	Candle   Candle
	// Final 表示该 K 线已收盘。
	Final bool
}

// SubscribeOptions 控制实时订阅行为。
type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

// SourceStats 记录数据源运行期的一些指标。
type SourceStats struct {
	Reconnects int
	Dropped    int
	LastError  string
}

// Source 统一对接外部行情供应商。
type Source interface {
	// FetchHistory 拉取最近 limit 根 K 线并按时间升序返回。
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// Close 释放底层资源。
	Close() error
}

// Streamer 是支持实时 K 线推送的行情源。
type Streamer interface {
	// Subscribe 订阅实时 K 线，返回只读事件通道；通道关闭意味着订阅已结束。
	Subscribe(ctx context.Context, symbols, intervals []string, opts SubscribeOptions) (<-chan CandleEvent, error)
	// Stats 返回当前运行状态。
	Stats() SourceStats
}
