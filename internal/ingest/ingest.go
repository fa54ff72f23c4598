// Package ingest 负责把行情源的 K 线定时（或实时）写入序列存储。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"pricechart/internal/coins"
	"pricechart/internal/config"
	"pricechart/internal/logger"
	"pricechart/internal/market"
	"pricechart/internal/store"
)

const maxParallel = 4

// Target 是一条需要维护的序列。
type Target struct {
	Symbol   string
	Interval string
}

func (t Target) String() string { return t.Symbol + "@" + t.Interval }

// ParseTargets 解析 "BTCUSDT" 或 "BTCUSDT@1m" 形式的目标，缺省周期取 interval。
func ParseTargets(raw []string, interval string) ([]Target, error) {
	seen := make(map[Target]bool, len(raw))
	out := make([]Target, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sym, iv, found := strings.Cut(item, "@")
		if !found {
			iv = interval
		}
		t := Target{Symbol: strings.ToUpper(strings.TrimSpace(sym)), Interval: strings.TrimSpace(iv)}
		if t.Symbol == "" || t.Interval == "" {
			return nil, fmt.Errorf("invalid ingest target %q", item)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// Refresher 从 source 拉取最近 limit 根 K 线写入 store。
type Refresher struct {
	source    market.Source
	store     store.SeriesStore
	targets   []Target
	interval  string
	spec      string
	limit     int
	maxPoints int

	// watch 提供动态币种；override 时其结果替换静态目标。
	watch    coins.SymbolProvider
	override bool
}

func New(src market.Source, st store.SeriesStore, cfg config.IngestConfig, maxPoints int) (*Refresher, error) {
	if src == nil || st == nil {
		return nil, errors.New("ingest requires a source and a store")
	}
	targets, err := ParseTargets(cfg.Targets, cfg.Interval)
	if err != nil {
		return nil, err
	}
	r := &Refresher{
		source:    src,
		store:     st,
		targets:   targets,
		interval:  cfg.Interval,
		spec:      cfg.Cron,
		limit:     cfg.Limit,
		maxPoints: maxPoints,
		override:  cfg.TargetsOverride,
	}
	if cfg.Dynamic() {
		r.watch = coins.NewHTTPProvider(coins.HTTPConfig{
			URL:     cfg.TargetsURL,
			Quote:   cfg.Quote,
			Refresh: cfg.TargetsRefresh.Std(),
		})
	}
	if len(targets) == 0 && r.watch == nil {
		return nil, errors.New("ingest requires targets or a targets_url")
	}
	return r, nil
}

// WithSymbols 设置动态币种来源。
func (r *Refresher) WithSymbols(p coins.SymbolProvider, override bool) *Refresher {
	r.watch = p
	r.override = override
	return r
}

// Targets 返回静态配置的目标。
func (r *Refresher) Targets() []Target {
	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Resolve 返回本轮需要刷新的目标：静态目标与动态币种（默认周期）合并。
// 动态来源失败时只用静态目标。
func (r *Refresher) Resolve(ctx context.Context) []Target {
	if r.watch == nil {
		return r.Targets()
	}
	symbols, err := r.watch.List(ctx)
	if err != nil {
		logger.Warnf("[ingest] %s 币种来源不可用，使用静态目标: %v", r.watch.Name(), err)
		return r.Targets()
	}
	var out []Target
	if !r.override || len(symbols) == 0 {
		out = r.Targets()
	}
	seen := make(map[Target]bool, len(out)+len(symbols))
	for _, t := range out {
		seen[t] = true
	}
	for _, sym := range symbols {
		t := Target{Symbol: sym, Interval: r.interval}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// RefreshOnce 刷新全部目标；单个目标失败不影响其它目标，错误合并返回。
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, t := range r.Resolve(ctx) {
		g.Go(func() error {
			if err := r.refresh(gctx, t); err != nil {
				logger.Warnf("[ingest] 刷新 %s 失败: %v", t, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", t, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Refresh 刷新单个目标。
func (r *Refresher) Refresh(ctx context.Context, t Target) error {
	return r.refresh(ctx, t)
}

func (r *Refresher) refresh(ctx context.Context, t Target) error {
	candles, err := r.source.FetchHistory(ctx, t.Symbol, t.Interval, r.limit)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, t.Symbol, t.Interval, market.Points(candles), r.maxPoints); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	logger.Debugf("[ingest] %s 写入 %d 根 K 线", t, len(candles))
	return nil
}

// Run 立即刷新一次，然后按 cron 表达式定时刷新，直到 ctx 结束。
func (r *Refresher) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, func() { _ = r.RefreshOnce(ctx) }); err != nil {
		return fmt.Errorf("register ingest job %q: %w", r.spec, err)
	}
	_ = r.RefreshOnce(ctx)
	c.Start()
	logger.Infof("[ingest] scheduler started: %s, %d targets", r.spec, len(r.targets))
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Infof("[ingest] scheduler stopped")
	return nil
}

// Follow 订阅实时 K 线并逐根写入 store，直到订阅结束。订阅集合在开始时
// 由 Resolve 确定，之后动态来源的变化不影响本次订阅。
func (r *Refresher) Follow(ctx context.Context, s market.Streamer) error {
	targets := r.Resolve(ctx)
	if len(targets) == 0 {
		return errors.New("no targets to follow")
	}
	symbols := make([]string, 0, len(targets))
	intervals := make([]string, 0, len(targets))
	seenSym, seenIv := map[string]bool{}, map[string]bool{}
	for _, t := range targets {
		if !seenSym[t.Symbol] {
			seenSym[t.Symbol] = true
			symbols = append(symbols, t.Symbol)
		}
		if !seenIv[t.Interval] {
			seenIv[t.Interval] = true
			intervals = append(intervals, t.Interval)
		}
	}
	events, err := s.Subscribe(ctx, symbols, intervals, market.SubscribeOptions{
		OnDisconnect: func(err error) { logger.Warnf("[ingest] 实时流断开: %v", err) },
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	wanted := make(map[Target]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}
	for ev := range events {
		t := Target{Symbol: ev.Symbol, Interval: ev.Interval}
		if !wanted[t] {
			continue
		}
		if err := r.store.Put(ctx, t.Symbol, t.Interval, []market.PricePoint{ev.Candle.Point()}, r.maxPoints); err != nil {
			logger.Warnf("[ingest] 写入实时 K 线 %s 失败: %v", t, err)
		}
	}
	return nil
}
