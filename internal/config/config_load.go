package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// ErrMalformed marks configuration that cannot start the gateway.
var ErrMalformed = errors.New("malformed configuration")

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Mode: ModeManaged,
		Batcher: BatcherConfig{
			PollIntervalMs:  1000,
			VolumeThreshold: 5,
			QuietMs:         10000,
			IdleEvictMs:     600000,
		},
		Database: DatabaseConfig{
			MaxConns:         20,
			MaxConnIdleMs:    30000,
			ConnectTimeoutMs: 2000,
			OpTimeoutMs:      5000,
			AutoMigrate:      true,
		},
		Redis: RedisConfig{
			PoolSize:      20,
			PoolTimeoutMs: 2000,
			KeyPrefix:     "queue:",
			LockExpiryMs:  30000,
		},
		ReplyService: ReplyServiceConfig{
			TimeoutMs: 10000,
		},
		Gateway: GatewayConfig{
			HTTPAddr: ":9090",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentbot",
		},
	}
}

// Load reads .env files, the JSON5 config file (optional) and env vars,
// in increasing precedence, then validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for tooling that only needs part
// of the configuration (migrate, doctor).
func LoadUnvalidated(path string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrMalformed, path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env.local and .env from the working directory. A value
// already set, by the real environment or an earlier file, is kept.
func loadEnvFiles() {
	var files []string
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return
	}
	if err := godotenv.Load(files...); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load %v: %v\n", files, err)
	}
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() error {
	var errs []error

	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s=%q: not a non-negative integer", key, v))
			return
		}
		*dst = n
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("AGENTBOT_MODE", &c.Mode)

	// Secrets
	envStr("TELEGRAM_BOT_TOKEN", &c.Channels.Telegram.Token)
	envStr("DATABASE_URL", &c.Database.PostgresDSN)
	envStr("REDIS_URL", &c.Redis.URL)
	envStr("API_SECRET_KEY", &c.ReplyService.APIKey)

	// Reply service
	envStr("SERVICE_URL", &c.ReplyService.BaseURL)
	if v := os.Getenv("AGENT_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("AGENT_ID=%q: not an integer", v))
		} else {
			c.ReplyService.AgentID = id
		}
	}
	envInt("REPLY_TIMEOUT_MS", &c.ReplyService.TimeoutMs)

	// Batcher
	envInt("BATCH_POLL_INTERVAL_MS", &c.Batcher.PollIntervalMs)
	envInt("BATCH_VOLUME_THRESHOLD", &c.Batcher.VolumeThreshold)
	envInt("BATCH_QUIET_MS", &c.Batcher.QuietMs)
	envInt("BATCH_IDLE_EVICT_MS", &c.Batcher.IdleEvictMs)

	// Stores
	envInt("PG_MAX_CONNS", &c.Database.MaxConns)
	envInt("STORE_TIMEOUT_MS", &c.Database.OpTimeoutMs)
	envBool("AGENTBOT_AUTO_MIGRATE", &c.Database.AutoMigrate)
	envInt("REDIS_POOL_SIZE", &c.Redis.PoolSize)
	envStr("AGENTBOT_STORAGE", &c.Standalone.Storage)

	// Channels
	envInt("TELEGRAM_RATE_LIMIT_RPM", &c.Channels.Telegram.RateLimitRPM)
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}

	// Gateway & telemetry
	envStr("AGENTBOT_HTTP_ADDR", &c.Gateway.HTTPAddr)
	envStr("AGENTBOT_HTTP_TOKEN", &c.Gateway.Token)
	envStr("AGENTBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENTBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envBool("AGENTBOT_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("AGENTBOT_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMalformed, errors.Join(errs...))
	}
	return nil
}

// Validate fails fast on missing connection strings or credentials.
func (c *Config) Validate() error {
	var missing []string
	require := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}

	switch c.Mode {
	case ModeManaged, "":
		require(c.Database.PostgresDSN != "", "DATABASE_URL")
		require(c.Redis.URL != "", "REDIS_URL")
	case ModeStandalone:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrMalformed, c.Mode)
	}

	require(c.ReplyService.BaseURL != "", "SERVICE_URL")
	require(c.ReplyService.AgentID != 0, "AGENT_ID")
	if c.Channels.Telegram.Enabled {
		require(c.Channels.Telegram.Token != "", "TELEGRAM_BOT_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}

	if c.Batcher.PollIntervalMs <= 0 {
		return fmt.Errorf("%w: batcher.poll_interval_ms must be > 0", ErrMalformed)
	}
	if c.Batcher.VolumeThreshold <= 0 {
		return fmt.Errorf("%w: batcher.volume_threshold must be > 0", ErrMalformed)
	}
	return nil
}

// MaskedCopy returns a copy with secrets replaced for display.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Database.PostgresDSN)
	maskNonEmpty(&cp.Redis.URL)
	maskNonEmpty(&cp.ReplyService.APIKey)
	maskNonEmpty(&cp.Gateway.Token)
	return &cp
}

const secretMask = "***"

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}
