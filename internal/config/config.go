package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds coordinator configuration, loaded from environment
// variables. The three binaries (coordinatord, hostd, gatewayd) each read
// the subset of fields relevant to their role.
type Config struct {
	// Role labels which binary this config load is feeding, mostly for log
	// lines; each binary reads only the fields relevant to it.
	Role string `env:"SKYCLAW_ROLE" envDefault:"coordinator"`

	// Server
	Host string `env:"SKYCLAW_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SKYCLAW_PORT" envDefault:"8080"`

	// NodeID identifies this coordinator among its peers. If empty, one is
	// minted at startup and logged.
	NodeID string `env:"SKYCLAW_NODE_ID"`

	// PublicURL is this node's own base URL, as advertised to peers during
	// gossip and join. Required for replication to function.
	PublicURL string `env:"SKYCLAW_PUBLIC_URL"`

	// AuthToken, if set, is required as the x-skyclaw-token header on every
	// non-public route.
	AuthToken string `env:"SKYCLAW_AUTH_TOKEN"`

	// DBPath is the sqlite database file backing the durable mirror.
	DBPath string `env:"SKYCLAW_DB_PATH" envDefault:"skyclaw.db"`

	// LeaseMs is the duration, in milliseconds, a job claim holds before it
	// is eligible for requeue.
	LeaseMs int64 `env:"SKYCLAW_LEASE_MS" envDefault:"60000"`

	// PeerURLs seeds the peer set at startup.
	PeerURLs []string `env:"SKYCLAW_PEER_URLS" envSeparator:","`

	// MinReplicas is the desired total replica count (self included) for a
	// quorum-guarded mutation; clamped to at least 1 by the replication
	// package.
	MinReplicas int `env:"SKYCLAW_MIN_REPLICAS" envDefault:"2"`

	// PeerSyncIntervalMs is the gossip loop's period.
	PeerSyncIntervalMs int64 `env:"SKYCLAW_PEER_SYNC_MS" envDefault:"3000"`

	// PeerDiscoveryEnabled toggles the discover half of the gossip loop
	// (pulling peer lists and joining newly found peers). Sync always runs.
	PeerDiscoveryEnabled bool `env:"SKYCLAW_PEER_DISCOVERY_ENABLED" envDefault:"true"`

	// IdempotencyTTLMs is how long a ledger record is replayable after
	// creation.
	IdempotencyTTLMs int64 `env:"SKYCLAW_IDEMPOTENCY_TTL_MS" envDefault:"86400000"`

	// PublicAPIKeys configures the public job-submission surface. Format per
	// entry: "<key>:<label>[:allowShell][:cap1|cap2|...]". Empty disables
	// public routes (they respond 503).
	PublicAPIKeys []string `env:"SKYCLAW_PUBLIC_API_KEYS" envSeparator:";"`

	// PublicCORSOrigin is the Access-Control-Allow-Origin value served on
	// public routes.
	PublicCORSOrigin string `env:"SKYCLAW_PUBLIC_CORS_ORIGIN" envDefault:"*"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Telemetry
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// Host agent (skyclaw-hostd)
	HostName          string   `env:"SKYCLAW_HOST_NAME"`
	HostCapabilities  []string `env:"SKYCLAW_HOST_CAPABILITIES" envSeparator:","`
	HostMaxParallel   int      `env:"SKYCLAW_HOST_MAX_PARALLEL" envDefault:"4"`
	CoordinatorURLs   []string `env:"SKYCLAW_COORDINATOR_URLS" envSeparator:","`
	HeartbeatMs       int64    `env:"SKYCLAW_HEARTBEAT_MS" envDefault:"5000"`
	PollMs            int64    `env:"SKYCLAW_POLL_MS" envDefault:"2000"`
	ShellAllowedCmds  []string `env:"SKYCLAW_SHELL_ALLOWED_COMMANDS" envSeparator:","`
	OpenclawBin       string   `env:"SKYCLAW_OPENCLAW_BIN" envDefault:"openclaw"`

	// Gateway (skyclaw-gatewayd)
	GatewayPort           int   `env:"SKYCLAW_GATEWAY_PORT" envDefault:"9090"`
	GatewayPollMs         int64 `env:"SKYCLAW_GATEWAY_POLL_MS" envDefault:"2000"`
	GatewayEjectCooldownMs int64 `env:"SKYCLAW_GATEWAY_EJECT_COOLDOWN_MS" envDefault:"10000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
