package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pricechart/internal/config"
	"pricechart/internal/market"
)

func offlineConfig() config.Config {
	off := false
	return config.Config{Chart: config.ChartConfig{EngineEnabled: &off}}
}

func samplePoints() []market.PricePoint {
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return []market.PricePoint{
		{Time: t0, Open: market.Price(1), High: market.Price(2), Low: market.Price(0.5), Close: market.Price(1.5)},
		{Time: t0.Add(time.Minute), Open: market.Price(1.5), High: market.Price(1.8), Low: market.Price(1.1), Close: market.Price(1.2)},
	}
}

func TestRenderSeriesFormats(t *testing.T) {
	cfg := offlineConfig()
	ctx := context.Background()

	html, err := renderSeries(ctx, cfg, "html", 400, samplePoints())
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(string(html), "<svg") || !strings.Contains(string(html), `id="chart-`) {
		t.Fatalf("expected fallback markup")
	}
	svg, err := renderSeries(ctx, cfg, "SVG", 400, samplePoints())
	if err != nil || !strings.Contains(string(svg), "<svg") {
		t.Fatalf("svg: %v", err)
	}
	if _, err := renderSeries(ctx, cfg, "gif", 400, samplePoints()); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestSeriesFlagsLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.json")
	body, err := json.Marshal(samplePoints())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := offlineConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	sf := addSeriesFlags(fs, cfg)
	if err := fs.Parse([]string{"-in", path}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	pts, err := sf.load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(pts) != 2 || *pts[1].Close != 1.2 {
		t.Fatalf("unexpected points %+v", pts)
	}
	if sf.title() != path {
		t.Fatalf("unexpected title %q", sf.title())
	}

	empty := addSeriesFlags(flag.NewFlagSet("empty", flag.ContinueOnError), cfg)
	if _, err := empty.load(context.Background(), cfg); err == nil {
		t.Fatalf("expected error without -in or -symbol")
	}
}

func TestWriteOutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := writeOut(path, []byte("ok")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "ok" {
		t.Fatalf("unexpected file %q %v", got, err)
	}
}
