package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all tunables for the verification service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Resolver ResolverConfig `yaml:"resolver"`
	Probe    ProbeConfig    `yaml:"probe"`
	Executor ExecutorConfig `yaml:"executor"`
	Lists    ListsConfig    `yaml:"lists"`
}

type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type ResolverConfig struct {
	Servers      []string      `yaml:"servers"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	Lifetime     time.Duration `yaml:"lifetime"`
}

type ProbeConfig struct {
	HeloHost     string        `yaml:"helo_host"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	SMTPTimeout  time.Duration `yaml:"smtp_timeout"`
	TotalBudget  time.Duration `yaml:"total_budget"`
	MaxSMTPConns int           `yaml:"max_smtp_conns"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

type ExecutorConfig struct {
	Workers       int           `yaml:"workers"`
	MaxBulk       int           `yaml:"max_bulk"`
	FlushEvery    int           `yaml:"flush_every"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	RatePerSec    int           `yaml:"rate_per_sec"`
	RefundOnFail  *bool         `yaml:"refund_on_fail"`
}

// ListsConfig points at optional one-entry-per-line override files.
type ListsConfig struct {
	DisposableFile string `yaml:"disposable_file"`
	RolesFile      string `yaml:"roles_file"`
	CatchAllFile   string `yaml:"catch_all_file"`
}

// Default returns the documented operational defaults.
func Default() Config {
	refund := true
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Resolver: ResolverConfig{
			QueryTimeout: 3 * time.Second,
			Lifetime:     5 * time.Second,
		},
		Probe: ProbeConfig{
			HeloHost:     "verify.zbai.dev",
			HTTPTimeout:  10 * time.Second,
			SMTPTimeout:  15 * time.Second,
			TotalBudget:  30 * time.Second,
			MaxSMTPConns: 15,
			CacheTTL:     24 * time.Hour,
		},
		Executor: ExecutorConfig{
			Workers:       10,
			MaxBulk:       100000,
			FlushEvery:    10,
			FlushInterval: 2 * time.Second,
			RefundOnFail:  &refund,
		},
	}
}

// Load reads the YAML file (if path is non-empty) over the defaults, then
// applies environment overrides. A .env file is honored when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv maps environment variables onto config fields. Env wins over
// YAML so deployments can override without editing files.
func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("API_SECRET_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("DB_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("DNS_SERVERS"); v != "" {
		c.Resolver.Servers = splitList(v)
	}
	if v := os.Getenv("VERIFY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Executor.Workers = n
		}
	}
	if v := os.Getenv("VERIFY_MAX_BULK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Executor.MaxBulk = n
		}
	}
	if v := os.Getenv("VERIFY_RATE_PER_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Executor.RatePerSec = n
		}
	}
	if v := os.Getenv("VERIFY_REFUND_ON_FAIL"); v != "" {
		b := strings.EqualFold(v, "true") || v == "1"
		c.Executor.RefundOnFail = &b
	}
}

// RefundOnFail resolves the pointer knob with its default of true.
func (c *Config) RefundOnFail() bool {
	if c.Executor.RefundOnFail == nil {
		return true
	}
	return *c.Executor.RefundOnFail
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
