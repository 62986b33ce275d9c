// Package config provides configuration management for varta
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Audio      AudioConfig      `mapstructure:"audio"`
	Array      ArrayConfig      `mapstructure:"array"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Alert      AlertConfig      `mapstructure:"alert"`
	Power      PowerConfig      `mapstructure:"power"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Uplink     UplinkConfig     `mapstructure:"uplink"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// AudioConfig configures the capture and feature pipeline
type AudioConfig struct {
	SampleRate     int    `mapstructure:"sample_rate"`
	FFTSize        int    `mapstructure:"fft_size"`
	HopSize        int    `mapstructure:"hop_size"`
	MelBins        int    `mapstructure:"mel_bins"`
	SpecTimeFrames int    `mapstructure:"spec_time_frames"`
	Device         string `mapstructure:"device"` // capture device name, "" = default
}

// ArrayConfig describes the microphone array geometry
type ArrayConfig struct {
	MicSpacingMm   float64 `mapstructure:"mic_spacing_mm"`
	SpeedOfSound   float64 `mapstructure:"speed_of_sound"`
	MinCorrelation float64 `mapstructure:"min_correlation"`
	Smoothing      float64 `mapstructure:"smoothing"` // EMA alpha for azimuth
}

// DetectionConfig configures the decision engine
type DetectionConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	MinDetections       int           `mapstructure:"min_detections"`
	DetectionWindow     time.Duration `mapstructure:"detection_window"`
	CalibrationPeriod   time.Duration `mapstructure:"calibration_period"`
}

// AlertConfig configures the alert signaler
type AlertConfig struct {
	Holdoff  time.Duration `mapstructure:"holdoff"`
	Duration time.Duration `mapstructure:"duration"`
}

// PowerConfig configures battery monitoring.
// LOW_BATTERY is entered below CriticalVoltage and left only after the
// voltage has stayed above CriticalVoltage+RecoveryMargin for RecoveryHold.
type PowerConfig struct {
	LowVoltage      float64       `mapstructure:"low_voltage"`
	CriticalVoltage float64       `mapstructure:"critical_voltage"`
	RecoveryMargin  float64       `mapstructure:"recovery_margin"`
	RecoveryHold    time.Duration `mapstructure:"recovery_hold"`
}

// ClassifierConfig configures the inference sidecar client
type ClassifierConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// UplinkConfig configures the monitoring uplink
type UplinkConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
		},
		Audio: AudioConfig{
			SampleRate:     44100,
			FFTSize:        2048,
			HopSize:        512,
			MelBins:        128,
			SpecTimeFrames: 32,
		},
		Array: ArrayConfig{
			MicSpacingMm:   50.0,
			SpeedOfSound:   343.0,
			MinCorrelation: 0.5,
			Smoothing:      0.3,
		},
		Detection: DetectionConfig{
			ConfidenceThreshold: 0.75,
			MinDetections:       3,
			DetectionWindow:     4 * time.Second,
			CalibrationPeriod:   30 * time.Second,
		},
		Alert: AlertConfig{
			Holdoff:  2 * time.Second,
			Duration: 500 * time.Millisecond,
		},
		Power: PowerConfig{
			LowVoltage:      6.8,
			CriticalVoltage: 6.4,
			RecoveryMargin:  0.3,
			RecoveryHold:    5 * time.Second,
		},
		Classifier: ClassifierConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 2 * time.Second,
		},
		Uplink: UplinkConfig{
			Enabled:      false,
			URL:          "ws://localhost:9100/ingest",
			PingInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// Config file not found is okay, use defaults
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Printf("Warning: config file not found at %s, using defaults\n", path)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("VARTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.graceful_timeout", "5s")

	// Audio defaults
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.fft_size", 2048)
	v.SetDefault("audio.hop_size", 512)
	v.SetDefault("audio.mel_bins", 128)
	v.SetDefault("audio.spec_time_frames", 32)
	v.SetDefault("audio.device", "")

	// Array defaults
	v.SetDefault("array.mic_spacing_mm", 50.0)
	v.SetDefault("array.speed_of_sound", 343.0)
	v.SetDefault("array.min_correlation", 0.5)
	v.SetDefault("array.smoothing", 0.3)

	// Detection defaults
	v.SetDefault("detection.confidence_threshold", 0.75)
	v.SetDefault("detection.min_detections", 3)
	v.SetDefault("detection.detection_window", "4s")
	v.SetDefault("detection.calibration_period", "30s")

	// Alert defaults
	v.SetDefault("alert.holdoff", "2s")
	v.SetDefault("alert.duration", "500ms")

	// Power defaults
	v.SetDefault("power.low_voltage", 6.8)
	v.SetDefault("power.critical_voltage", 6.4)
	v.SetDefault("power.recovery_margin", 0.3)
	v.SetDefault("power.recovery_hold", "5s")

	// Classifier defaults
	v.SetDefault("classifier.base_url", "http://localhost:8000")
	v.SetDefault("classifier.timeout", "2s")

	// Uplink defaults
	v.SetDefault("uplink.enabled", false)
	v.SetDefault("uplink.url", "ws://localhost:9100/ingest")
	v.SetDefault("uplink.ping_interval", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.Audio.SampleRate)
	}

	if c.Audio.FFTSize <= 0 || c.Audio.FFTSize&(c.Audio.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a power of two, got %d", c.Audio.FFTSize)
	}

	if c.Audio.HopSize <= 0 || c.Audio.HopSize > c.Audio.FFTSize {
		return fmt.Errorf("hop_size must be in (0, fft_size], got %d", c.Audio.HopSize)
	}

	if c.Audio.MelBins <= 0 {
		return fmt.Errorf("mel_bins must be positive, got %d", c.Audio.MelBins)
	}

	if c.Audio.SpecTimeFrames <= 0 {
		return fmt.Errorf("spec_time_frames must be positive, got %d", c.Audio.SpecTimeFrames)
	}

	if c.Array.MicSpacingMm <= 0 {
		return fmt.Errorf("mic_spacing_mm must be positive, got %f", c.Array.MicSpacingMm)
	}

	if c.Array.Smoothing < 0 || c.Array.Smoothing > 1 {
		return fmt.Errorf("array smoothing must be between 0 and 1, got %f", c.Array.Smoothing)
	}

	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", c.Detection.ConfidenceThreshold)
	}

	if c.Detection.MinDetections < 1 {
		return fmt.Errorf("min_detections must be at least 1, got %d", c.Detection.MinDetections)
	}

	if c.Power.CriticalVoltage > c.Power.LowVoltage {
		return fmt.Errorf("critical_voltage (%f) must not exceed low_voltage (%f)",
			c.Power.CriticalVoltage, c.Power.LowVoltage)
	}

	return nil
}

// HopInterval returns the wall-clock duration of one processing tick
func (c *AudioConfig) HopInterval() time.Duration {
	return time.Duration(float64(c.HopSize) / float64(c.SampleRate) * float64(time.Second))
}

// MicSpacingM returns the adjacent microphone spacing in meters
func (c *ArrayConfig) MicSpacingM() float64 {
	return c.MicSpacingMm / 1000.0
}
