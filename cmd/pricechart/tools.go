package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pricechart/internal/chart"
	"pricechart/internal/config"
	"pricechart/internal/inspect"
	"pricechart/internal/logger"
	"pricechart/internal/market"
	"pricechart/internal/snapshot"
	"pricechart/internal/store"
)

// seriesFlags 选择输入序列：-in 指定 JSON 文件，否则从 store 读取。
type seriesFlags struct {
	in       *string
	symbol   *string
	interval *string
}

func addSeriesFlags(fs *flag.FlagSet, cfg config.Config) seriesFlags {
	return seriesFlags{
		in:       fs.String("in", "", "JSON file with price points (overrides -symbol)"),
		symbol:   fs.String("symbol", "", "stored symbol, e.g. BTCUSDT"),
		interval: fs.String("interval", cfg.Ingest.Interval, "stored interval"),
	}
}

func (f seriesFlags) title() string {
	if *f.in != "" {
		return *f.in
	}
	return strings.ToUpper(*f.symbol) + "@" + *f.interval
}

func (f seriesFlags) load(ctx context.Context, cfg config.Config) ([]market.PricePoint, error) {
	if *f.in != "" {
		data, err := os.ReadFile(*f.in)
		if err != nil {
			return nil, err
		}
		var pts []market.PricePoint
		if err := json.Unmarshal(data, &pts); err != nil {
			return nil, fmt.Errorf("decode %s: %w", *f.in, err)
		}
		return pts, nil
	}
	if *f.symbol == "" {
		return nil, errors.New("-in or -symbol is required")
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Get(ctx, *f.symbol, *f.interval)
}

func output(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func writeOut(path string, body []byte) error {
	w, err := output(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func runFetch(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	symbol := fs.String("symbol", "", "symbol, e.g. BTCUSDT")
	interval := fs.String("interval", cfg.Ingest.Interval, "kline interval")
	limit := fs.Int("limit", cfg.Ingest.Limit, "number of candles")
	save := fs.Bool("save", false, "merge the candles into the configured store")
	out := fs.String("out", "-", "output JSON file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbol == "" {
		return errors.New("-symbol is required")
	}
	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	candles, err := src.FetchHistory(ctx, *symbol, *interval, *limit)
	if err != nil {
		return err
	}
	pts := market.Points(candles)
	if *save {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Put(ctx, *symbol, *interval, pts, cfg.Store.MaxPoints); err != nil {
			return err
		}
		logger.Infof("[fetch] %s@%s 写入 %d 根 K 线", *symbol, *interval, len(pts))
	}
	body, err := json.MarshalIndent(pts, "", "  ")
	if err != nil {
		return err
	}
	return writeOut(*out, append(body, '\n'))
}

func runRender(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	series := addSeriesFlags(fs, cfg)
	format := fs.String("format", "html", "html|svg|png")
	width := fs.Int("width", cfg.Chart.Width, "chart width in pixels, 0 for default")
	out := fs.String("out", "-", "output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pts, err := series.load(ctx, cfg)
	if err != nil {
		return err
	}
	body, err := renderSeries(ctx, cfg, *format, *width, pts)
	if err != nil {
		return err
	}
	return writeOut(*out, body)
}

func renderSeries(ctx context.Context, cfg config.Config, format string, width int, pts []market.PricePoint) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "svg":
		err := chart.RenderSVG(&buf, chart.Normalize(pts), width, nil)
		return buf.Bytes(), err
	case "png":
		err := chart.RenderPNG(&buf, chart.Normalize(pts), width, nil)
		return buf.Bytes(), err
	case "html":
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	pc := chart.New(chart.NewSurface(width), chart.Options{
		Loader:   chartLoader(cfg)(),
		Location: cfg.Chart.Location(),
	})
	pc.Mount(ctx)
	defer pc.Unmount()
	select {
	case <-pc.Ready():
	case <-time.After(readyWait(cfg)):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := pc.Render(&buf, pts); err != nil {
		return nil, err
	}
	logger.Debugf("[render] strategy=%s", pc.Strategy())
	return buf.Bytes(), nil
}

func runInspect(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	series := addSeriesFlags(fs, cfg)
	asCSV := fs.Bool("csv", false, "write csv instead of a table")
	limit := fs.Int("limit", 0, "show only the newest n points")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pts, err := series.load(ctx, cfg)
	if err != nil {
		return err
	}
	opts := inspect.Options{Location: cfg.Chart.Location(), PricePrecision: inspect.PrecisionAuto, Limit: *limit}
	if *asCSV {
		return inspect.CSV(os.Stdout, pts, opts)
	}
	return inspect.Table(os.Stdout, series.title(), pts, opts)
}

func runSnapshot(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	series := addSeriesFlags(fs, cfg)
	pageURL := fs.String("url", "", "capture this page instead of rendering a series")
	remote := fs.String("remote", "", "DevTools websocket url of a running browser")
	out := fs.String("out", "chart.png", "output png file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts := snapshot.FromConfig(cfg.Snapshot)
	opts.RemoteURL = *remote

	var (
		png []byte
		err error
	)
	if *pageURL != "" {
		png, err = snapshot.Capture(ctx, *pageURL, opts)
	} else {
		var pts []market.PricePoint
		if pts, err = series.load(ctx, cfg); err != nil {
			return err
		}
		var page []byte
		if page, err = renderSeries(ctx, cfg, "html", opts.Width, pts); err != nil {
			return err
		}
		png, err = snapshot.CaptureHTML(ctx, page, opts)
	}
	if err != nil {
		return err
	}
	logger.Infof("[snapshot] 写入 %s (%d bytes)", *out, len(png))
	return writeOut(*out, png)
}

func runInit(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("out", "configs/pricechart.toml", "config file to write; an existing file is backed up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.Save(*path, cfg); err != nil {
		return err
	}
	logger.Infof("[init] 配置已写入 %s", *path)
	return nil
}
