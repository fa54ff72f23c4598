package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pricechart/internal/logger"
	"pricechart/internal/market"
)

const defaultEventBuffer = 512

// Subscribe 通过组合流订阅 symbols×intervals 的实时 K 线。连接断开后按
// ReconnectDelay 重连，直到 ctx 结束或 Close；之后事件通道被关闭。
func (s *Source) Subscribe(ctx context.Context, symbols, intervals []string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	streams := streamNames(symbols, intervals)
	if len(streams) == 0 {
		return nil, fmt.Errorf("symbols and intervals are required for subscription")
	}
	endpoint, err := streamURL(s.cfg.WSBaseURL, streams)
	if err != nil {
		return nil, err
	}
	conn, err := s.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if opts.OnConnect != nil {
		opts.OnConnect()
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	out := make(chan market.CandleEvent, buffer)
	subCtx, cancel := context.WithCancel(ctx)
	id := s.track(cancel)

	go func() {
		defer close(out)
		defer s.untrack(id)
		defer cancel()
		for {
			err := s.readLoop(subCtx, conn, out)
			if subCtx.Err() != nil {
				return
			}
			s.recordError(err, true)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			conn = s.redial(subCtx, endpoint)
			if conn == nil {
				return
			}
			if opts.OnConnect != nil {
				opts.OnConnect()
			}
		}
	}()
	return out, nil
}

func (s *Source) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// redial 重试直到连上或 ctx 结束（返回 nil）。
func (s *Source) redial(ctx context.Context, endpoint string) *websocket.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
		conn, err := s.dial(ctx, endpoint)
		if err == nil {
			return conn
		}
		s.recordError(err, false)
		logger.Warnf("[binance] WS 重连失败: %v", err)
	}
}

func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- market.CandleEvent) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, ok := decodeFrame(msg)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		default:
			s.mu.Lock()
			s.stats.Dropped++
			s.mu.Unlock()
			logger.Warnf("[binance] 事件通道已满，丢弃 %s %s", ev.Symbol, ev.Interval)
		}
	}
}

func (s *Source) recordError(err error, reconnect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reconnect {
		s.stats.Reconnects++
	}
	if err != nil {
		s.stats.LastError = err.Error()
	}
}

func streamNames(symbols, intervals []string) []string {
	var out []string
	for _, sym := range symbols {
		sym = strings.ToLower(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		for _, iv := range intervals {
			iv = strings.TrimSpace(iv)
			if iv == "" {
				continue
			}
			out = append(out, sym+"@kline_"+iv)
		}
	}
	return out
}

func streamURL(base string, streams []string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid ws url %q: %w", base, err)
	}
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func decodeFrame(b []byte) (market.CandleEvent, bool) {
	var frame struct {
		Stream string     `json:"stream"`
		Data   klineEvent `json:"data"`
	}
	if err := json.Unmarshal(b, &frame); err != nil {
		logger.Warnf("[binance] 解码 WS 帧失败: %v", err)
		return market.CandleEvent{}, false
	}
	k := frame.Data.Kline
	if frame.Data.EventType != "kline" || k.Symbol == "" {
		return market.CandleEvent{}, false
	}
	return market.CandleEvent{
		Symbol:   strings.ToUpper(k.Symbol),
		Interval: k.Interval,
		Final:    k.IsFinal,
		Candle: market.Candle{
			OpenTime:  k.StartTime,
			CloseTime: k.CloseTime,
			Open:      k.OpenPrice.Float(),
			High:      k.HighPrice.Float(),
			Low:       k.LowPrice.Float(),
			Close:     k.ClosePrice.Float(),
			Volume:    k.Volume.Float(),
			Trades:    k.NumberOfTrades,
		},
	}, true
}

type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Kline     struct {
		StartTime      int64    `json:"t"`
		CloseTime      int64    `json:"T"`
		Symbol         string   `json:"s"`
		Interval       string   `json:"i"`
		OpenPrice      strOrNum `json:"o"`
		ClosePrice     strOrNum `json:"c"`
		HighPrice      strOrNum `json:"h"`
		LowPrice       strOrNum `json:"l"`
		Volume         strOrNum `json:"v"`
		NumberOfTrades int64    `json:"n"`
		IsFinal        bool     `json:"x"`
	} `json:"k"`
}

type strOrNum string

func (s *strOrNum) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = strOrNum(v)
		return nil
	}
	*s = strOrNum(string(b))
	return nil
}

func (s strOrNum) Float() float64 {
	f, _ := strconv.ParseFloat(string(s), 64)
	return f
}
