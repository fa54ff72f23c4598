package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"pricechart/internal/logger"
)

// Config 是 pricechart 的完整运行配置（TOML）。
type Config struct {
	Log      LogConfig      `toml:"log"`
	HTTP     HTTPConfig     `toml:"http"`
	Chart    ChartConfig    `toml:"chart"`
	Store    StoreConfig    `toml:"store"`
	Source   SourceConfig   `toml:"source"`
	Ingest   IngestConfig   `toml:"ingest"`
	Snapshot SnapshotConfig `toml:"snapshot"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// ChartConfig 控制价格图组件与主渲染引擎的接入。
type ChartConfig struct {
	// EngineEnabled=false 时直接走内置 SVG 渲染。
	EngineEnabled *bool    `toml:"engine_enabled"`
	AssetsHost    string   `toml:"assets_host"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
	Width         int      `toml:"width"`
	SMAPeriod     int      `toml:"sma_period"`
	EMAPeriod     int      `toml:"ema_period"`
	Timezone      string   `toml:"timezone"`
}

type StoreConfig struct {
	Driver    string `toml:"driver"`
	Path      string `toml:"path"`
	MaxPoints int    `toml:"max_points"`
}

type SourceConfig struct {
	BaseURL     string   `toml:"base_url"`
	WSURL       string   `toml:"ws_url"`
	HTTPTimeout Duration `toml:"http_timeout"`
}

// IngestConfig 控制定时拉取；Stream=true 时额外订阅实时 K 线。
type IngestConfig struct {
	Cron     string   `toml:"cron"`
	Targets  []string `toml:"targets"`
	Interval string   `toml:"interval"`
	Limit    int      `toml:"limit"`
	Stream   bool     `toml:"stream"`
	// TargetsURL 非空时从该 API 动态获取币种，与 Targets 合并（TargetsOverride 时替换）。
	TargetsURL      string   `toml:"targets_url"`
	TargetsRefresh  Duration `toml:"targets_refresh"`
	TargetsOverride bool     `toml:"targets_override"`
	Quote           string   `toml:"quote"`
}

// Dynamic 报告是否配置了动态币种来源。
func (c IngestConfig) Dynamic() bool { return strings.TrimSpace(c.TargetsURL) != "" }

type SnapshotConfig struct {
	Width   int      `toml:"width"`
	Height  int      `toml:"height"`
	Timeout Duration `toml:"timeout"`
}

// Duration 允许在 TOML 中写 "5s" 这类字符串。
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// EngineOn 报告主渲染引擎是否启用（默认启用）。
func (c ChartConfig) EngineOn() bool {
	return c.EngineEnabled == nil || *c.EngineEnabled
}

// Location 解析 Timezone，失败时回落到 time.Local。
func (c ChartConfig) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warnf("[config] 未知时区 %q，使用本地时区: %v", tz, err)
		return time.Local
	}
	return loc
}

// Load 读取 TOML 配置（文件不存在时使用默认值），再应用 .env / 环境变量覆盖。
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("解析配置 %s 失败: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			logger.Debugf("[config] %s 不存在，使用默认配置", path)
		default:
			return Config{}, fmt.Errorf("读取配置 %s 失败: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil {
		logger.Debugf("[config] 未加载 .env: %v", err)
	}
	cfg.applyEnv()
	return cfg.withDefaults(), nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PRICECHART_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("PRICECHART_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PRICECHART_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("PRICECHART_ASSETS_HOST"); v != "" {
		c.Chart.AssetsHost = v
	}
	if v := os.Getenv("PRICECHART_ENGINE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Chart.EngineEnabled = &b
		}
	}
}

func (c Config) withDefaults() Config {
	out := c
	if out.Log.Level == "" {
		out.Log.Level = "info"
	}
	if out.HTTP.Addr == "" {
		out.HTTP.Addr = ":9992"
	}
	if out.Chart.AssetsHost == "" {
		out.Chart.AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"
	}
	if !strings.HasSuffix(out.Chart.AssetsHost, "/") {
		out.Chart.AssetsHost += "/"
	}
	if out.Chart.Width < 0 {
		out.Chart.Width = 0
	}
	if out.Chart.SMAPeriod < 0 {
		out.Chart.SMAPeriod = 0
	}
	if out.Chart.EMAPeriod < 0 {
		out.Chart.EMAPeriod = 0
	}
	if out.Store.Driver == "" {
		out.Store.Driver = "memory"
	}
	if out.Store.Path == "" {
		out.Store.Path = "data/pricechart.db"
	}
	if out.Store.MaxPoints <= 0 {
		out.Store.MaxPoints = 1000
	}
	if out.Source.BaseURL == "" {
		out.Source.BaseURL = "https://fapi.binance.com"
	}
	if out.Source.WSURL == "" {
		out.Source.WSURL = "wss://fstream.binance.com/stream"
	}
	if out.Source.HTTPTimeout <= 0 {
		out.Source.HTTPTimeout = Duration(15 * time.Second)
	}
	if out.Ingest.Cron == "" {
		out.Ingest.Cron = "@every 1m"
	}
	if out.Ingest.Interval == "" {
		out.Ingest.Interval = "15m"
	}
	if out.Ingest.Limit <= 0 {
		out.Ingest.Limit = 200
	}
	if out.Ingest.Quote == "" {
		out.Ingest.Quote = "USDT"
	}
	if out.Ingest.TargetsRefresh <= 0 {
		out.Ingest.TargetsRefresh = Duration(time.Hour)
	}
	if out.Snapshot.Width <= 0 {
		out.Snapshot.Width = 800
	}
	if out.Snapshot.Height <= 0 {
		out.Snapshot.Height = 340
	}
	if out.Snapshot.Timeout <= 0 {
		out.Snapshot.Timeout = Duration(30 * time.Second)
	}
	return out
}
