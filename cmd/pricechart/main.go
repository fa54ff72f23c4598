package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pricechart/internal/config"
	"pricechart/internal/logger"
)

const usage = `usage: pricechart <command> [flags]

commands:
  serve     run the chart server with scheduled ingestion
  fetch     download recent candles from the exchange
  render    render a series to html, svg or png
  inspect   print a series as a table or csv with normalization notes
  snapshot  capture a rendered chart with headless chrome
  init      write the effective configuration to a TOML file
`

type command func(ctx context.Context, cfg config.Config, args []string) error

var commands = map[string]command{
	"serve":    runServe,
	"fetch":    runFetch,
	"render":   runRender,
	"inspect":  runInspect,
	"snapshot": runSnapshot,
	"init":     runInit,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	cfgPath := "configs/pricechart.toml"
	if v := os.Getenv("PRICECHART_CONFIG"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	closer, err := logger.Setup(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, cfg, os.Args[2:]); err != nil {
		logger.Errorf("[%s] %v", name, err)
		stop()
		closer.Close()
		os.Exit(1)
	}
}
