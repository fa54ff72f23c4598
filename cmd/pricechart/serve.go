package main

import (
	"context"
	"flag"
	"time"

	"golang.org/x/sync/errgroup"

	"pricechart/internal/chart"
	"pricechart/internal/chart/echarts"
	"pricechart/internal/config"
	"pricechart/internal/gateway/binance"
	"pricechart/internal/ingest"
	"pricechart/internal/logger"
	"pricechart/internal/store"
	"pricechart/internal/transport"
	"pricechart/internal/transport/http/sessions"
)

func runServe(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.HTTP.Addr, "listen address")
	noIngest := fs.Bool("no-ingest", false, "serve stored series only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	srv, err := transport.NewServer(ctx, transport.Config{
		Addr:     *addr,
		Store:    st,
		Sessions: sessionSettings(cfg),
	})
	if err != nil {
		return err
	}

	var (
		src *binance.Source
		ref *ingest.Refresher
	)
	if !*noIngest && (len(cfg.Ingest.Targets) > 0 || cfg.Ingest.Dynamic()) {
		if src, err = newSource(cfg); err != nil {
			return err
		}
		defer src.Close()
		if ref, err = ingest.New(src, st, cfg.Ingest, cfg.Store.MaxPoints); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if ref != nil {
		g.Go(func() error { return ref.Run(gctx) })
		if cfg.Ingest.Stream {
			g.Go(func() error {
				if err := ref.Follow(gctx, src); err != nil {
					logger.Warnf("[serve] 实时订阅结束: %v", err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func newSource(cfg config.Config) (*binance.Source, error) {
	return binance.New(binance.Config{
		RESTBaseURL: cfg.Source.BaseURL,
		WSBaseURL:   cfg.Source.WSURL,
		HTTPTimeout: cfg.Source.HTTPTimeout.Std(),
	})
}

func engineConfig(cfg config.Config) echarts.Config {
	return echarts.Config{
		AssetsHost:   cfg.Chart.AssetsHost,
		ProbeTimeout: cfg.Chart.ProbeTimeout.Std(),
		SMAPeriod:    cfg.Chart.SMAPeriod,
		EMAPeriod:    cfg.Chart.EMAPeriod,
		Location:     cfg.Chart.Location(),
	}
}

// chartLoader 按配置选择 ECharts 引擎或直接使用内置渲染。
func chartLoader(cfg config.Config) func() chart.Loader {
	if !cfg.Chart.EngineOn() {
		return func() chart.Loader { return chart.Unavailable("engine disabled") }
	}
	ec := engineConfig(cfg)
	return func() chart.Loader { return echarts.NewLoader(ec) }
}

func sessionSettings(cfg config.Config) sessions.Settings {
	return sessions.Settings{
		Loader:          chartLoader(cfg),
		Location:        cfg.Chart.Location(),
		Width:           cfg.Chart.Width,
		DefaultInterval: cfg.Ingest.Interval,
		ReadyWait:       readyWait(cfg),
	}
}

func readyWait(cfg config.Config) time.Duration {
	if d := cfg.Chart.ProbeTimeout.Std(); d > 0 {
		return d + time.Second
	}
	return 10 * time.Second
}
