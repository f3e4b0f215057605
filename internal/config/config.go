package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Store modes.
const (
	ModeManaged    = "managed"    // Redis queue + Postgres status
	ModeStandalone = "standalone" // local file store, single process
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the agentbot gateway.
type Config struct {
	Mode         string             `json:"mode,omitempty"` // "managed" (default) or "standalone"
	Channels     ChannelsConfig     `json:"channels"`
	Batcher      BatcherConfig      `json:"batcher"`
	Database     DatabaseConfig     `json:"database,omitempty"`
	Redis        RedisConfig        `json:"redis,omitempty"`
	Standalone   StandaloneConfig   `json:"standalone,omitempty"`
	ReplyService ReplyServiceConfig `json:"reply_service"`
	Gateway      GatewayConfig      `json:"gateway"`
	Telemetry    TelemetryConfig    `json:"telemetry,omitempty"`
}

// IsManagedMode reports whether the gateway uses Redis and Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Mode != ModeStandalone
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled      bool                `json:"enabled"`
	Token        string              `json:"-"` // from env TELEGRAM_BOT_TOKEN only
	Proxy        string              `json:"proxy,omitempty"`
	AllowFrom    FlexibleStringSlice `json:"allow_from,omitempty"`
	RateLimitRPM int                 `json:"rate_limit_rpm,omitempty"` // per-chat inbound messages per minute (0 = unlimited)
}

// BatcherConfig holds the debounce thresholds. Durations are milliseconds.
type BatcherConfig struct {
	PollIntervalMs  int `json:"poll_interval_ms,omitempty"`
	VolumeThreshold int `json:"volume_threshold,omitempty"`
	QuietMs         int `json:"quiet_ms,omitempty"`
	IdleEvictMs     int `json:"idle_evict_ms,omitempty"` // 0 = never evict
}

func (b BatcherConfig) PollInterval() time.Duration { return ms(b.PollIntervalMs) }
func (b BatcherConfig) QuietThreshold() time.Duration { return ms(b.QuietMs) }
func (b BatcherConfig) IdleEvictAfter() time.Duration { return ms(b.IdleEvictMs) }

// DatabaseConfig configures the Postgres status store.
// PostgresDSN is NEVER read from config.json (secret), only from env DATABASE_URL.
type DatabaseConfig struct {
	PostgresDSN      string `json:"-"`
	MaxConns         int    `json:"max_conns,omitempty"`
	MaxConnIdleMs    int    `json:"max_conn_idle_ms,omitempty"`
	ConnectTimeoutMs int    `json:"connect_timeout_ms,omitempty"`
	OpTimeoutMs      int    `json:"op_timeout_ms,omitempty"`
	AutoMigrate      bool   `json:"auto_migrate,omitempty"`
}

// RedisConfig configures the message queue.
type RedisConfig struct {
	URL           string `json:"-"` // from env REDIS_URL only
	PoolSize      int    `json:"pool_size,omitempty"`
	PoolTimeoutMs int    `json:"pool_timeout_ms,omitempty"`
	KeyPrefix     string `json:"key_prefix,omitempty"`
	LockExpiryMs  int    `json:"lock_expiry_ms,omitempty"`
}

// StandaloneConfig configures the file-backed store. Empty Storage keeps
// everything in memory.
type StandaloneConfig struct {
	Storage string `json:"storage,omitempty"`
}

// ReplyServiceConfig configures the downstream agent service.
type ReplyServiceConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"-"` // from env API_SECRET_KEY only
	AgentID   int64  `json:"agent_id,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

func (r ReplyServiceConfig) Timeout() time.Duration { return ms(r.TimeoutMs) }

// GatewayConfig configures the operational HTTP listener.
type GatewayConfig struct {
	HTTPAddr string `json:"http_addr,omitempty"` // "" disables /healthz and /metrics
	Token    string `json:"-"`                   // bearer token for /v1 routes, from env AGENTBOT_HTTP_TOKEN only
}

// TelemetryConfig configures OpenTelemetry export for dispatch spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
