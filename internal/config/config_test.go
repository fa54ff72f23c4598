package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9992" {
		t.Fatalf("默认地址应为 :9992, 实际=%q", cfg.HTTP.Addr)
	}
	if !cfg.Chart.EngineOn() {
		t.Fatalf("主渲染引擎默认应启用")
	}
	if cfg.Chart.ProbeTimeout != 0 {
		t.Fatalf("默认不应设置探测超时, 实际=%v", cfg.Chart.ProbeTimeout.Std())
	}
	if cfg.Store.Driver != "memory" || cfg.Store.MaxPoints != 1000 {
		t.Fatalf("store 默认值异常: %+v", cfg.Store)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricechart.toml")
	body := `
[http]
addr = ":8080"

[chart]
engine_enabled = false
assets_host = "http://localhost:9000/assets"
probe_timeout = "3s"
sma_period = 20
timezone = "UTC"

[store]
driver = "sqlite"
path = "/tmp/x.db"

[ingest]
targets = ["BTCUSDT", "ETHUSDT"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("addr 应为 :8080, 实际=%q", cfg.HTTP.Addr)
	}
	if cfg.Chart.EngineOn() {
		t.Fatalf("engine_enabled=false 未生效")
	}
	if cfg.Chart.AssetsHost != "http://localhost:9000/assets/" {
		t.Fatalf("assets_host 应补齐末尾斜杠, 实际=%q", cfg.Chart.AssetsHost)
	}
	if cfg.Chart.ProbeTimeout.Std() != 3*time.Second {
		t.Fatalf("probe_timeout 应为 3s, 实际=%v", cfg.Chart.ProbeTimeout.Std())
	}
	if cfg.Chart.Location() != time.UTC {
		t.Fatalf("timezone=UTC 未生效")
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/tmp/x.db" {
		t.Fatalf("store 配置异常: %+v", cfg.Store)
	}
	if len(cfg.Ingest.Targets) != 2 || cfg.Ingest.Cron != "@every 1m" {
		t.Fatalf("ingest 配置异常: %+v", cfg.Ingest)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[chart]\nprobe_timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("非法 duration 应返回错误")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PRICECHART_ENGINE_ENABLED", "false")
	t.Setenv("PRICECHART_HTTP_ADDR", ":7000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chart.EngineOn() {
		t.Fatalf("环境变量应关闭主渲染引擎")
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Fatalf("环境变量 addr 未生效: %q", cfg.HTTP.Addr)
	}
}
