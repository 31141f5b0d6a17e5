package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/bscdefi/internal/registry"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BSCDEFI_"

const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

type GlobalFlags struct {
	ConfigPath  string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	EnableTools string
	Strict      bool
	Timeout     string
	Retries     int
	MaxStale    string
	NoStale     bool
	NoCache     bool
	RPCURL      string
	LogLevel    string
}

type Settings struct {
	OutputMode   string
	SelectFields []string
	ResultsOnly  bool
	EnableTools  []string
	Strict       bool
	Timeout      time.Duration
	Retries      int
	MaxStale     time.Duration
	NoStale      bool

	CacheEnabled  bool
	CacheBackend  string
	CachePath     string
	CacheLockPath string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JournalPath     string
	JournalLockPath string

	RPCURL               string
	ChainID              int64
	YieldsBaseURL        string
	ReceiptTimeout       time.Duration
	PollInterval         time.Duration
	GasMultiplier        float64
	GasPriceFloorGwei    float64
	PortfolioConcurrency int

	LogLevel  string
	LogFormat string
}

type fileConfig struct {
	Output        string `yaml:"output"`
	Strict        *bool  `yaml:"strict"`
	Timeout       string `yaml:"timeout"`
	Retries       *int   `yaml:"retries"`
	RPCURL        string `yaml:"rpc_url"`
	ChainID       *int64 `yaml:"chain_id"`
	YieldsBaseURL string `yaml:"yields_base_url"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	Cache         struct {
		Enabled  *bool  `yaml:"enabled"`
		Backend  string `yaml:"backend"`
		MaxStale string `yaml:"max_stale"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		Redis    struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       *int   `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Execution struct {
		JournalPath       string   `yaml:"journal_path"`
		JournalLockPath   string   `yaml:"journal_lock_path"`
		ReceiptTimeout    string   `yaml:"receipt_timeout"`
		PollInterval      string   `yaml:"poll_interval"`
		GasMultiplier     *float64 `yaml:"gas_multiplier"`
		GasPriceFloorGwei *float64 `yaml:"gas_price_floor_gwei"`
	} `yaml:"execution"`
	Portfolio struct {
		Concurrency *int `yaml:"concurrency"`
	} `yaml:"portfolio"`
	Tools struct {
		Enabled []string `yaml:"enabled"`
	} `yaml:"tools"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if settings.PortfolioConcurrency <= 0 {
		settings.PortfolioConcurrency = 4
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = 1.2
	}
	if settings.ReceiptTimeout <= 0 {
		settings.ReceiptTimeout = 2 * time.Minute
	}
	if settings.CacheBackend != CacheBackendSQLite && settings.CacheBackend != CacheBackendRedis {
		return Settings{}, fmt.Errorf("cache backend must be %s or %s", CacheBackendSQLite, CacheBackendRedis)
	}
	if settings.CacheBackend == CacheBackendRedis && settings.RedisAddr == "" {
		return Settings{}, fmt.Errorf("redis cache backend needs cache.redis.addr")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:           "json",
		Timeout:              10 * time.Second,
		Retries:              2,
		MaxStale:             5 * time.Minute,
		CacheEnabled:         true,
		CacheBackend:         CacheBackendSQLite,
		CachePath:            cachePath,
		CacheLockPath:        lockPath,
		JournalPath:          filepath.Join(cacheDir, "operations.db"),
		JournalLockPath:      filepath.Join(cacheDir, "operations.lock"),
		RPCURL:               registry.DefaultRPCURL,
		ChainID:              registry.ChainID,
		YieldsBaseURL:        "https://yields.llama.fi",
		ReceiptTimeout:       2 * time.Minute,
		PollInterval:         2 * time.Second,
		GasMultiplier:        1.2,
		GasPriceFloorGwei:    3,
		PortfolioConcurrency: 4,
		LogLevel:             "info",
		LogFormat:            "json",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "bscdefi", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "bscdefi")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if err := parseDuration("timeout", cfg.Timeout, &settings.Timeout); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	setString(&settings.RPCURL, cfg.RPCURL)
	if cfg.ChainID != nil {
		settings.ChainID = *cfg.ChainID
	}
	setString(&settings.YieldsBaseURL, cfg.YieldsBaseURL)
	setString(&settings.LogLevel, cfg.LogLevel)
	setString(&settings.LogFormat, cfg.LogFormat)

	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Backend != "" {
		settings.CacheBackend = strings.ToLower(cfg.Cache.Backend)
	}
	if err := parseDuration("cache.max_stale", cfg.Cache.MaxStale, &settings.MaxStale); err != nil {
		return err
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)
	setString(&settings.RedisAddr, cfg.Cache.Redis.Addr)
	setString(&settings.RedisPassword, cfg.Cache.Redis.Password)
	if cfg.Cache.Redis.DB != nil {
		settings.RedisDB = *cfg.Cache.Redis.DB
	}

	setString(&settings.JournalPath, cfg.Execution.JournalPath)
	setString(&settings.JournalLockPath, cfg.Execution.JournalLockPath)
	if err := parseDuration("execution.receipt_timeout", cfg.Execution.ReceiptTimeout, &settings.ReceiptTimeout); err != nil {
		return err
	}
	if err := parseDuration("execution.poll_interval", cfg.Execution.PollInterval, &settings.PollInterval); err != nil {
		return err
	}
	if cfg.Execution.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	if cfg.Execution.GasPriceFloorGwei != nil {
		settings.GasPriceFloorGwei = *cfg.Execution.GasPriceFloorGwei
	}
	if cfg.Portfolio.Concurrency != nil {
		settings.PortfolioConcurrency = *cfg.Portfolio.Concurrency
	}
	if len(cfg.Tools.Enabled) > 0 {
		settings.EnableTools = splitList(strings.Join(cfg.Tools.Enabled, ","))
	}
	return nil
}

func parseDuration(field, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config %s: %w", field, err)
	}
	*dst = d
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// applyEnv reads BSCDEFI_* variables. Unparseable values are ignored.
func applyEnv(settings *Settings) {
	env := func(name string) string { return os.Getenv(envPrefix + name) }

	if v := env("OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if b, err := strconv.ParseBool(env("STRICT")); err == nil {
		settings.Strict = b
	}
	if d, err := time.ParseDuration(env("TIMEOUT")); err == nil {
		settings.Timeout = d
	}
	if n, err := strconv.Atoi(env("RETRIES")); err == nil {
		settings.Retries = n
	}
	if d, err := time.ParseDuration(env("MAX_STALE")); err == nil {
		settings.MaxStale = d
	}
	if b, err := strconv.ParseBool(env("NO_STALE")); err == nil {
		settings.NoStale = b
	}
	if b, err := strconv.ParseBool(env("NO_CACHE")); err == nil {
		settings.CacheEnabled = !b
	}
	if v := env("CACHE_BACKEND"); v != "" {
		settings.CacheBackend = strings.ToLower(v)
	}
	setString(&settings.CachePath, env("CACHE_PATH"))
	setString(&settings.CacheLockPath, env("CACHE_LOCK_PATH"))
	setString(&settings.RedisAddr, env("REDIS_ADDR"))
	setString(&settings.RedisPassword, env("REDIS_PASSWORD"))
	if n, err := strconv.Atoi(env("REDIS_DB")); err == nil {
		settings.RedisDB = n
	}
	setString(&settings.JournalPath, env("JOURNAL_PATH"))
	setString(&settings.JournalLockPath, env("JOURNAL_LOCK_PATH"))
	setString(&settings.RPCURL, env("RPC_URL"))
	if n, err := strconv.ParseInt(env("CHAIN_ID"), 10, 64); err == nil {
		settings.ChainID = n
	}
	setString(&settings.YieldsBaseURL, env("YIELDS_BASE_URL"))
	if d, err := time.ParseDuration(env("RECEIPT_TIMEOUT")); err == nil {
		settings.ReceiptTimeout = d
	}
	if d, err := time.ParseDuration(env("POLL_INTERVAL")); err == nil {
		settings.PollInterval = d
	}
	if f, err := strconv.ParseFloat(env("GAS_MULTIPLIER"), 64); err == nil {
		settings.GasMultiplier = f
	}
	if f, err := strconv.ParseFloat(env("GAS_PRICE_FLOOR_GWEI"), 64); err == nil {
		settings.GasPriceFloorGwei = f
	}
	if n, err := strconv.Atoi(env("PORTFOLIO_CONCURRENCY")); err == nil {
		settings.PortfolioConcurrency = n
	}
	if v := env("ENABLE_TOOLS"); v != "" {
		settings.EnableTools = splitList(v)
	}
	setString(&settings.LogLevel, env("LOG_LEVEL"))
	setString(&settings.LogFormat, env("LOG_FORMAT"))
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly
	if strings.TrimSpace(flags.EnableTools) != "" {
		settings.EnableTools = splitList(flags.EnableTools)
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	setString(&settings.RPCURL, flags.RPCURL)
	setString(&settings.LogLevel, flags.LogLevel)

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
