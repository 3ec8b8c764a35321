package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.HTTPAddr != ":8081" {
		t.Errorf("http addr = %q", cfg.App.HTTPAddr)
	}
	if cfg.Sync.DefaultStatusOnCreate != "draft" {
		t.Errorf("default status = %q", cfg.Sync.DefaultStatusOnCreate)
	}
	if cfg.Sync.StockInterval != 3*time.Hour {
		t.Errorf("stock interval = %v", cfg.Sync.StockInterval)
	}
	if cfg.Scrape.MinDelay != 2*time.Second || cfg.Scrape.MaxDelay != 5*time.Second {
		t.Errorf("scrape delays = %v / %v", cfg.Scrape.MinDelay, cfg.Scrape.MaxDelay)
	}
	if cfg.Supplier.RequestTimeout != 30*time.Second {
		t.Errorf("supplier timeout = %v", cfg.Supplier.RequestTimeout)
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	path := writeConfigFile(t, `{
		"supplier": {"base_url": "https://api.example.com", "request_timeout": "10s"},
		"sync": {"scheduled_enabled": true, "stock_interval": "90m", "full_interval": "12h"},
		"scrape": {"min_delay": "1s", "max_delay": "3s", "request_timeout": "20s"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Supplier.RequestTimeout != 10*time.Second {
		t.Errorf("supplier timeout = %v", cfg.Supplier.RequestTimeout)
	}
	if !cfg.Sync.ScheduledEnabled {
		t.Error("scheduled_enabled not parsed")
	}
	if cfg.Sync.StockInterval != 90*time.Minute || cfg.Sync.FullInterval != 12*time.Hour {
		t.Errorf("intervals = %v / %v", cfg.Sync.StockInterval, cfg.Sync.FullInterval)
	}
	if cfg.Scrape.MinDelay != time.Second || cfg.Scrape.MaxDelay != 3*time.Second {
		t.Errorf("delays = %v / %v", cfg.Scrape.MinDelay, cfg.Scrape.MaxDelay)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfigFile(t, `{"sync": {"stock_interval": "soon"}}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, `{"app": {"http_addr": ":9000"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTPAddr != ":9000" {
		t.Errorf("http addr = %q", cfg.App.HTTPAddr)
	}
	// 未设置的段落回落到默认值
	if cfg.Sync.FullSyncPageSize != 1000 || cfg.Scrape.CooldownWindow != 3600 {
		t.Errorf("defaults not applied: %+v %+v", cfg.Sync, cfg.Scrape)
	}
}

func TestLoad_MaxDelayClampedToMin(t *testing.T) {
	path := writeConfigFile(t, `{"scrape": {"min_delay": "10s", "max_delay": "2s"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scrape.MaxDelay < cfg.Scrape.MinDelay {
		t.Errorf("max delay %v below min %v", cfg.Scrape.MaxDelay, cfg.Scrape.MinDelay)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SUPPLIER_USERNAME", "env-user")
	t.Setenv("SYNC_STOCK_INTERVAL", "45m")
	t.Setenv("REDIS_ADDR", "redis-prod:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Supplier.Username != "env-user" {
		t.Errorf("username = %q", cfg.Supplier.Username)
	}
	if cfg.Sync.StockInterval != 45*time.Minute {
		t.Errorf("stock interval = %v", cfg.Sync.StockInterval)
	}
	if cfg.Redis.Addr != "redis-prod:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	original := getDefaultConfig()
	original.Sync.StockInterval = 2 * time.Hour

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Sync.StockInterval != 2*time.Hour {
		t.Errorf("stock interval = %v", loaded.Sync.StockInterval)
	}
	if loaded.Supplier.RequestTimeout != original.Supplier.RequestTimeout {
		t.Errorf("supplier timeout = %v", loaded.Supplier.RequestTimeout)
	}
}
