package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"nettop/internal/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks configuration and command-line validation failures.
var ErrConfig = errors.New("invalid configuration")

// CaptureConfig holds live capture settings.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	ReadTimeout string `yaml:"read_timeout"`
}

// WindowConfig holds the reporting cycle settings.
type WindowConfig struct {
	Interval     int    `yaml:"interval"` // seconds
	PollInterval string `yaml:"poll_interval"`
	Sort         string `yaml:"sort"`
	TopN         int    `yaml:"top_n"`
}

// AggregatorConfig holds the flow table and worker pool settings.
type AggregatorConfig struct {
	NumShards           uint32 `yaml:"num_shards"`
	NumWorkers          int    `yaml:"num_workers"`
	SizeOfPacketChannel int    `yaml:"size_of_packet_channel"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`
}

// APIConfig holds the HTTP and gRPC health listeners.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	GRPCAddr   string `yaml:"grpc_addr"`
}

// NATSConfig configures the NATS report exporter.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig configures the ClickHouse report exporter.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// ExporterDef defines a single report exporter.
type ExporterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	NATS       NATSConfig       `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture    CaptureConfig    `yaml:"capture"`
	Window     WindowConfig     `yaml:"window"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Exporters  []ExporterDef    `yaml:"exporters"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			SnapshotLen: 262144,
			Promiscuous: true,
			ReadTimeout: "100ms",
		},
		Window: WindowConfig{
			Interval:     1,
			PollInterval: "50ms",
			Sort:         "b",
			TopN:         10,
		},
		Aggregator: AggregatorConfig{
			NumShards:           64,
			NumWorkers:          1,
			SizeOfPacketChannel: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			ListenAddr: ":9100",
		},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults. An empty path
// yields the defaults.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config YAML: %v", ErrConfig, err)
	}

	return cfg, nil
}

// ApplyEnv loads a .env file if one exists and overrides fields from NETTOP_* variables.
// Exporter credentials are normally supplied this way rather than in the YAML file.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	if v := os.Getenv("NETTOP_INTERFACE"); v != "" {
		c.Capture.Interface = v
	}
	if v := os.Getenv("NETTOP_SORT"); v != "" {
		c.Window.Sort = v
	}
	if v := os.Getenv("NETTOP_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: NETTOP_INTERVAL: %v", ErrConfig, err)
		}
		c.Window.Interval = n
	}
	if v := os.Getenv("NETTOP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("NETTOP_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	for i := range c.Exporters {
		e := &c.Exporters[i]
		switch e.Type {
		case "nats":
			if v := os.Getenv("NETTOP_NATS_URL"); v != "" {
				e.NATS.URL = v
			}
		case "clickhouse":
			if v := os.Getenv("NETTOP_CLICKHOUSE_PASSWORD"); v != "" {
				e.ClickHouse.Password = v
			}
		}
	}
	return nil
}

// Validate checks the values the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Capture.Interface == "" {
		return fmt.Errorf("%w: network interface is required", ErrConfig)
	}
	if _, err := model.ParseSortMode(c.Window.Sort); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if c.Window.Interval <= 0 {
		return fmt.Errorf("%w: interval must be a positive number of seconds, got %d", ErrConfig, c.Window.Interval)
	}
	if c.Window.TopN <= 0 {
		return fmt.Errorf("%w: top_n must be positive, got %d", ErrConfig, c.Window.TopN)
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.ReadTimeout(); err != nil {
		return err
	}
	return nil
}

// SortMode returns the parsed sort mode. Call Validate first.
func (c *Config) SortMode() model.SortMode {
	m, _ := model.ParseSortMode(c.Window.Sort)
	return m
}

// Interval returns the report interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Window.Interval) * time.Second
}

// PollInterval returns how often the controller checks for an elapsed window.
func (c *Config) PollInterval() (time.Duration, error) {
	return parsePositiveDuration("poll_interval", c.Window.PollInterval)
}

// ReadTimeout returns the capture read timeout.
func (c *Config) ReadTimeout() (time.Duration, error) {
	return parsePositiveDuration("read_timeout", c.Capture.ReadTimeout)
}

func parsePositiveDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrConfig, name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration", ErrConfig, name)
	}
	return d, nil
}
