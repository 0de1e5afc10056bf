package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and tunes the storage backend.
type StorageConfig struct {
	Backend          string `yaml:"backend" validate:"oneof=container badger memory"`
	Path             string `yaml:"path" validate:"required_unless=Backend memory"`
	Compression      string `yaml:"compression" validate:"oneof=none snappy lz4 zstd"`
	Overwrite        bool   `yaml:"overwrite"`
	PreallocateBytes int64  `yaml:"preallocate_bytes" validate:"gte=0"`
	MinFreeBytes     uint64 `yaml:"min_free_bytes"`
	BadgerInMemory   bool   `yaml:"badger_in_memory"`
}

// RecordingConfig holds the writer options.
type RecordingConfig struct {
	Version            string `yaml:"version"`
	SessionDescription string `yaml:"session_description"`
	ChunkSize          int    `yaml:"chunk_size" validate:"gt=0"`
	SpikeChunkSize     int    `yaml:"spike_chunk_size" validate:"gt=0"`
	EventChunkSize     int    `yaml:"event_chunk_size" validate:"gt=0"`
	MaxStagedFrames    int    `yaml:"max_staged_frames" validate:"gte=0"`
}

// SessionConfig describes the synthetic session recorded by nwb-record.
type SessionConfig struct {
	Duration        string  `yaml:"duration"`
	Channels        int     `yaml:"channels" validate:"gt=0,lte=1024"`
	Electrodes      int     `yaml:"electrodes" validate:"gte=0,lte=256"`
	SampleRate      float64 `yaml:"sample_rate" validate:"gt=0"`
	SamplesPerSpike int     `yaml:"samples_per_spike" validate:"gt=0"`
	// SpikeRate is in spikes per second per electrode.
	SpikeRate   float64 `yaml:"spike_rate" validate:"gte=0"`
	TTLInterval string  `yaml:"ttl_interval"`
	BitVolts    float64 `yaml:"bit_volts" validate:"gt=0"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Output string `yaml:"output" validate:"oneof=stdout stderr file none"`
	File   string `yaml:"file"` // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol" validate:"oneof=grpc http"`
}

// DebugConfig holds debugging-related configurations.
type DebugConfig struct {
	Enabled               bool   `yaml:"enabled"`
	ListenAddress         string `yaml:"listen_address"`
	PProfEnabled          bool   `yaml:"pprof_enabled"`
	MetricsEnabled        bool   `yaml:"metrics_enabled"`
	MonitorUIEnabled      bool   `yaml:"monitor_ui_enabled"`
	SystemMetricsInterval string `yaml:"system_metrics_interval"`
}

// Config is the top-level configuration struct.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Recording RecordingConfig `yaml:"recording"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Debug     DebugConfig     `yaml:"debug"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:          "container",
			Path:             "./data/session.nwb",
			Compression:      "snappy",
			PreallocateBytes: 64 * 1024 * 1024, // 64 MiB
			MinFreeBytes:     256 * 1024 * 1024,
		},
		Recording: RecordingConfig{
			Version:         "0.1.0",
			ChunkSize:       2048,
			SpikeChunkSize:  16,
			EventChunkSize:  16,
			MaxStagedFrames: 65536,
		},
		Session: SessionConfig{
			Duration:        "2s",
			Channels:        16,
			Electrodes:      4,
			SampleRate:      30000,
			SamplesPerSpike: 40,
			SpikeRate:       20,
			TTLInterval:     "250ms",
			BitVolts:        0.195,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nwb-record.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Debug: DebugConfig{
			Enabled:               false,
			ListenAddress:         "127.0.0.1:6060",
			PProfEnabled:          true,
			MetricsEnabled:        true,
			MonitorUIEnabled:      true,
			SystemMetricsInterval: "5s",
		},
	}
}

// Load reads configuration from an io.Reader, on top of the defaults, and
// validates the result.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
