package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	return tmp
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\nrpc_url: https://file.example\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BSCDEFI_OUTPUT", "json")
	t.Setenv("BSCDEFI_RPC_URL", "https://env.example")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.RPCURL != "https://env.example" {
		t.Fatalf("expected env rpc url over file, got %s", settings.RPCURL)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadDefaults(t *testing.T) {
	tmp := isolate(t)
	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ChainID != 56 || settings.GasPriceFloorGwei != 3 || settings.GasMultiplier != 1.2 {
		t.Fatalf("unexpected chain defaults %+v", settings)
	}
	if settings.ReceiptTimeout != 2*time.Minute || settings.PortfolioConcurrency != 4 {
		t.Fatalf("unexpected execution defaults %+v", settings)
	}
	if want := filepath.Join(tmp, "cache", "bscdefi", "operations.db"); settings.JournalPath != want {
		t.Fatalf("journal path %s, want %s", settings.JournalPath, want)
	}
	if settings.CacheBackend != CacheBackendSQLite || settings.Retries != 2 {
		t.Fatalf("unexpected cache defaults %+v", settings)
	}
}

func TestLoadFileSections(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	body := `
cache:
  backend: redis
  redis:
    addr: 127.0.0.1:6379
    db: 3
execution:
  receipt_timeout: 45s
  gas_multiplier: 1.5
  gas_price_floor_gwei: 5
portfolio:
  concurrency: 8
tools:
  enabled: [get_apy, bnb_balance]
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.CacheBackend != CacheBackendRedis || settings.RedisAddr != "127.0.0.1:6379" || settings.RedisDB != 3 {
		t.Fatalf("unexpected cache settings %+v", settings)
	}
	if settings.ReceiptTimeout != 45*time.Second || settings.GasMultiplier != 1.5 || settings.GasPriceFloorGwei != 5 {
		t.Fatalf("unexpected execution settings %+v", settings)
	}
	if settings.PortfolioConcurrency != 8 || len(settings.EnableTools) != 2 {
		t.Fatalf("unexpected portfolio/tools settings %+v", settings)
	}
}

func TestLoadRejectsRedisWithoutAddress(t *testing.T) {
	isolate(t)
	t.Setenv("BSCDEFI_CACHE_BACKEND", "redis")
	if _, err := Load(GlobalFlags{Retries: -1}); err == nil {
		t.Fatal("expected error for redis backend without address")
	}
}

func TestLoadBadFileDuration(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("execution:\n  poll_interval: soon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1}); err == nil {
		t.Fatal("expected parse error")
	}
}
