package config

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort                   = 3000
	DefaultMinSecondsAfterRequest = 1
	DefaultForwardHeaderIndex     = 1
	DefaultUpdateIntervalMillis   = 5000
	DefaultCountResetMinutes      = 60
	DefaultMaxHistoryLength       = 60
	DefaultLogLevel               = "info"
	PortEnvVar                    = "PORT"
)

type ServerConfig struct {
	Port                   int
	EnableRateLimit        bool
	MinSecondsAfterRequest int
	MetricsAddr            string
	LogLevel               string
}

type ClientIPConfig struct {
	TrustForwardHeader bool
	CountFromStart     bool
	ForwardHeaderIndex int
}

type StatsConfig struct {
	UpdateInterval    time.Duration
	CountResetPeriod  time.Duration
	MaxHistoryLength  int
	NetworkInterfaces bool
}

// Config is the validated runtime configuration. Every field holds a usable
// value; bad input has already been replaced by its default.
type Config struct {
	Server   ServerConfig
	ClientIP ClientIPConfig
	Stats    StatsConfig
}

// MinRequestSpacing is the minimum time between two allowed status requests
// from the same client.
func (c *Config) MinRequestSpacing() time.Duration {
	return time.Duration(c.Server.MinSecondsAfterRequest) * time.Second
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// fileConfig mirrors the YAML layout. Values stay untyped so that a single
// malformed entry falls back to its default instead of failing the whole file.
type fileConfig struct {
	Server struct {
		Port                       any    `yaml:"port"`
		EnableRateLimit            any    `yaml:"enableRateLimit"`
		MinSecondsAfterLastRequest any    `yaml:"minSecondsAfterLastRequest"`
		MetricsAddr                string `yaml:"metricsAddr"`
		LogLevel                   string `yaml:"logLevel"`
	} `yaml:"server"`
	GetClientIP struct {
		GetIPByXFF          any `yaml:"getIpByXFF"`
		GetIPByXFFFromStart any `yaml:"getIpByXFFFromStart"`
		GetIPByXFFCount     any `yaml:"getIpByXFFCount"`
	} `yaml:"getClientIp"`
	SystemStats struct {
		UpdateInterval            any `yaml:"updateInterval"`
		IPRequestCountSaveMinutes any `yaml:"ipRequestCountSaveMinutes"`
		MaxHistoryLength          any `yaml:"MaxHistoryLength"`
		NetworkInterfaces         any `yaml:"networkInterfaces"`
	} `yaml:"systemStats"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   DefaultPort,
			EnableRateLimit:        true,
			MinSecondsAfterRequest: DefaultMinSecondsAfterRequest,
			LogLevel:               DefaultLogLevel,
		},
		ClientIP: ClientIPConfig{
			TrustForwardHeader: false,
			CountFromStart:     true,
			ForwardHeaderIndex: DefaultForwardHeaderIndex,
		},
		Stats: StatsConfig{
			UpdateInterval:    DefaultUpdateIntervalMillis * time.Millisecond,
			CountResetPeriod:  DefaultCountResetMinutes * time.Minute,
			MaxHistoryLength:  DefaultMaxHistoryLength,
			NetworkInterfaces: true,
		},
	}
}

// Load reads the YAML file at path. A missing file yields the defaults; a
// file that is not valid YAML is an error. Individual invalid values are
// replaced by their defaults and reported through logger.
func Load(path string, logger *slog.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if logger != nil {
				logger.Warn("Config file not found, using defaults", "path", path)
			}
			return Parse(nil, logger)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, logger)
}

func Parse(data []byte, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	v := validator{logger: logger}
	cfg := Default()

	cfg.Server.Port = v.positiveInt("server.port", raw.Server.Port, DefaultPort)
	cfg.Server.EnableRateLimit = v.boolean("server.enableRateLimit", raw.Server.EnableRateLimit, true)
	cfg.Server.MinSecondsAfterRequest = v.positiveInt("server.minSecondsAfterLastRequest", raw.Server.MinSecondsAfterLastRequest, DefaultMinSecondsAfterRequest)
	cfg.Server.MetricsAddr = strings.TrimSpace(raw.Server.MetricsAddr)
	if lvl := strings.TrimSpace(raw.Server.LogLevel); lvl != "" {
		cfg.Server.LogLevel = lvl
	}

	cfg.ClientIP.TrustForwardHeader = v.boolean("getClientIp.getIpByXFF", raw.GetClientIP.GetIPByXFF, false)
	cfg.ClientIP.CountFromStart = v.boolean("getClientIp.getIpByXFFFromStart", raw.GetClientIP.GetIPByXFFFromStart, true)
	cfg.ClientIP.ForwardHeaderIndex = v.positiveInt("getClientIp.getIpByXFFCount", raw.GetClientIP.GetIPByXFFCount, DefaultForwardHeaderIndex)

	intervalMs := v.positiveInt("systemStats.updateInterval", raw.SystemStats.UpdateInterval, DefaultUpdateIntervalMillis)
	cfg.Stats.UpdateInterval = time.Duration(intervalMs) * time.Millisecond
	resetMin := v.positiveInt("systemStats.ipRequestCountSaveMinutes", raw.SystemStats.IPRequestCountSaveMinutes, DefaultCountResetMinutes)
	cfg.Stats.CountResetPeriod = time.Duration(resetMin) * time.Minute
	cfg.Stats.MaxHistoryLength = v.positiveInt("systemStats.MaxHistoryLength", raw.SystemStats.MaxHistoryLength, DefaultMaxHistoryLength)
	cfg.Stats.NetworkInterfaces = v.boolean("systemStats.networkInterfaces", raw.SystemStats.NetworkInterfaces, true)

	return cfg, nil
}

// ApplyEnv overrides the port from the PORT environment variable when it
// holds a positive integer.
func (c *Config) ApplyEnv(lookup func(string) (string, bool), logger *slog.Logger) {
	val, ok := lookup(PortEnvVar)
	if !ok || strings.TrimSpace(val) == "" {
		return
	}
	port, ok := toPositiveInt(val)
	if !ok {
		if logger != nil {
			logger.Warn("Ignoring invalid port from environment", "var", PortEnvVar, "value", val)
		}
		return
	}
	c.Server.Port = port
}

type validator struct {
	logger *slog.Logger
}

func (v validator) positiveInt(key string, value any, def int) int {
	if value == nil {
		return def
	}
	n, ok := toPositiveInt(value)
	if !ok {
		v.logger.Warn("Invalid config value, using default", "key", key, "value", value, "default", def)
		return def
	}
	return n
}

func (v validator) boolean(key string, value any, def bool) bool {
	switch b := value.(type) {
	case nil:
		return def
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	v.logger.Warn("Invalid config value, using default", "key", key, "value", value, "default", def)
	return def
}

// toPositiveInt floors numeric input and rejects anything below 1.
func toPositiveInt(value any) (int, bool) {
	var f float64
	switch n := value.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Floor(f)
	if f < 1 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
