package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 8081
  enableRateLimit: false
  minSecondsAfterLastRequest: 10
  metricsAddr: ":9100"
  logLevel: debug
getClientIp:
  getIpByXFF: true
  getIpByXFFFromStart: false
  getIpByXFFCount: 2
systemStats:
  updateInterval: 2000
  ipRequestCountSaveMinutes: 30
  MaxHistoryLength: 120
  networkInterfaces: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Server.EnableRateLimit {
		t.Error("EnableRateLimit = true, want false")
	}
	if got := cfg.MinRequestSpacing(); got != 10*time.Second {
		t.Errorf("MinRequestSpacing = %v, want 10s", got)
	}
	if cfg.Server.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q", cfg.Server.MetricsAddr)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if !cfg.ClientIP.TrustForwardHeader || cfg.ClientIP.CountFromStart || cfg.ClientIP.ForwardHeaderIndex != 2 {
		t.Errorf("ClientIP = %+v", cfg.ClientIP)
	}
	if cfg.Stats.UpdateInterval != 2*time.Second {
		t.Errorf("UpdateInterval = %v, want 2s", cfg.Stats.UpdateInterval)
	}
	if cfg.Stats.CountResetPeriod != 30*time.Minute {
		t.Errorf("CountResetPeriod = %v, want 30m", cfg.Stats.CountResetPeriod)
	}
	if cfg.Stats.MaxHistoryLength != 120 {
		t.Errorf("MaxHistoryLength = %d, want 120", cfg.Stats.MaxHistoryLength)
	}
	if cfg.Stats.NetworkInterfaces {
		t.Error("NetworkInterfaces = true, want false")
	}
	if cfg.ListenAddr() != ":8081" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
}

func TestParseInvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "negative port",
			yaml: "server:\n  port: -5\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != DefaultPort {
					t.Errorf("Port = %d, want %d", cfg.Server.Port, DefaultPort)
				}
			},
		},
		{
			name: "zero history length",
			yaml: "systemStats:\n  MaxHistoryLength: 0\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Stats.MaxHistoryLength != DefaultMaxHistoryLength {
					t.Errorf("MaxHistoryLength = %d", cfg.Stats.MaxHistoryLength)
				}
			},
		},
		{
			name: "non numeric string",
			yaml: "getClientIp:\n  getIpByXFFCount: many\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.ClientIP.ForwardHeaderIndex != DefaultForwardHeaderIndex {
					t.Errorf("ForwardHeaderIndex = %d", cfg.ClientIP.ForwardHeaderIndex)
				}
			},
		},
		{
			name: "float is floored",
			yaml: "server:\n  minSecondsAfterLastRequest: 2.9\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.MinSecondsAfterRequest != 2 {
					t.Errorf("MinSecondsAfterRequest = %d, want 2", cfg.Server.MinSecondsAfterRequest)
				}
			},
		},
		{
			name: "fraction below one falls back",
			yaml: "server:\n  minSecondsAfterLastRequest: 0.5\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.MinSecondsAfterRequest != DefaultMinSecondsAfterRequest {
					t.Errorf("MinSecondsAfterRequest = %d", cfg.Server.MinSecondsAfterRequest)
				}
			},
		},
		{
			name: "numeric string accepted",
			yaml: "systemStats:\n  updateInterval: \"1500\"\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Stats.UpdateInterval != 1500*time.Millisecond {
					t.Errorf("UpdateInterval = %v", cfg.Stats.UpdateInterval)
				}
			},
		},
		{
			name: "bool from string",
			yaml: "server:\n  enableRateLimit: \"false\"\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.EnableRateLimit {
					t.Error("EnableRateLimit = true, want false")
				}
			},
		},
		{
			name: "bad bool falls back",
			yaml: "getClientIp:\n  getIpByXFF: maybe\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.ClientIP.TrustForwardHeader {
					t.Error("TrustForwardHeader = true, want default false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml), nil)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestParseMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("server: [unterminated"), nil); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want int
	}{
		{"unset", map[string]string{}, DefaultPort},
		{"valid", map[string]string{"PORT": "9090"}, 9090},
		{"invalid", map[string]string{"PORT": "http"}, DefaultPort},
		{"zero", map[string]string{"PORT": "0"}, DefaultPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ApplyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}, nil)
			if cfg.Server.Port != tt.want {
				t.Errorf("Port = %d, want %d", cfg.Server.Port, tt.want)
			}
		})
	}
}
