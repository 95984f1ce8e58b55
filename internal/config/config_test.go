package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default role is coordinator",
			check:  func(c *Config) bool { return c.Role == "coordinator" },
			expect: "coordinator",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default lease ms",
			check:  func(c *Config) bool { return c.LeaseMs == 60000 },
			expect: "60000",
		},
		{
			name:   "default min replicas",
			check:  func(c *Config) bool { return c.MinReplicas == 2 },
			expect: "2",
		},
		{
			name:   "default peer sync ms",
			check:  func(c *Config) bool { return c.PeerSyncIntervalMs == 3000 },
			expect: "3000",
		},
		{
			name:   "default peer discovery enabled",
			check:  func(c *Config) bool { return c.PeerDiscoveryEnabled },
			expect: "true",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}
