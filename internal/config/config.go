// Package config provides configuration management for avatarsync
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	Bands     BandsConfig     `mapstructure:"bands" yaml:"bands"`
	Smoothing SmoothingConfig `mapstructure:"smoothing" yaml:"smoothing"`
	Render    RenderConfig    `mapstructure:"render" yaml:"render"`
	Persona   string          `mapstructure:"persona" yaml:"persona" validate:"omitempty,oneof=hermes narrator"`
	Voice     VoiceConfig     `mapstructure:"voice" yaml:"voice"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// AnalysisConfig configures the spectrum analyser
type AnalysisConfig struct {
	FFTSize               int     `mapstructure:"fft_size" yaml:"fft_size" validate:"oneof=32 64 128 256 512 1024 2048 4096 8192 16384 32768"`
	MinDecibels           float64 `mapstructure:"min_decibels" yaml:"min_decibels" validate:"ltfield=MaxDecibels"`
	MaxDecibels           float64 `mapstructure:"max_decibels" yaml:"max_decibels" validate:"lte=0"`
	SmoothingTimeConstant float64 `mapstructure:"smoothing_time_constant" yaml:"smoothing_time_constant" validate:"gte=0,lte=1"`
}

// BandsConfig selects the band layout
type BandsConfig struct {
	Layout string     `mapstructure:"layout" yaml:"layout" validate:"oneof=thirds quarters custom"`
	Custom []BandSpec `mapstructure:"custom" yaml:"custom,omitempty" validate:"required_if=Layout custom,dive"`
}

// BandSpec is one custom band, bins [lo, hi)
type BandSpec struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required,lowercase"`
	Lo   int    `mapstructure:"lo" yaml:"lo" validate:"gte=0"`
	Hi   int    `mapstructure:"hi" yaml:"hi" validate:"gtfield=Lo"`
}

// SmoothingConfig configures per-parameter damping
type SmoothingConfig struct {
	DefaultDamping float64            `mapstructure:"default_damping" yaml:"default_damping" validate:"gt=0,lte=1"`
	Dampings       map[string]float64 `mapstructure:"dampings" yaml:"dampings" validate:"dive,gt=0,lte=1"`
	Derived        []DerivedSpec      `mapstructure:"derived" yaml:"derived" validate:"dive"`
}

// DerivedSpec is a scalar derived from one band
type DerivedSpec struct {
	Name    string  `mapstructure:"name" yaml:"name" validate:"required"`
	From    string  `mapstructure:"from" yaml:"from" validate:"required"`
	Gain    float64 `mapstructure:"gain" yaml:"gain" validate:"gt=0"`
	Damping float64 `mapstructure:"damping" yaml:"damping" validate:"gt=0,lte=1"`
}

// RenderConfig configures the render loop
type RenderConfig struct {
	FPS      int           `mapstructure:"fps" yaml:"fps" validate:"gte=1,lte=240"`
	MaxDelta time.Duration `mapstructure:"max_delta" yaml:"max_delta" validate:"gt=0"`
}

// VoiceConfig configures speech synthesis
type VoiceConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider" validate:"oneof=espeak openai"`
	BinaryPath string        `mapstructure:"binary_path" yaml:"binary_path"`
	Voice      string        `mapstructure:"voice" yaml:"voice"`
	Variant    string        `mapstructure:"variant" yaml:"variant"`
	Amplitude  int           `mapstructure:"amplitude" yaml:"amplitude" validate:"gte=0,lte=200"`
	Speed      int           `mapstructure:"speed" yaml:"speed" validate:"gte=10,lte=500"`
	Pitch      int           `mapstructure:"pitch" yaml:"pitch" validate:"gte=0,lte=99"`
	WordGap    int           `mapstructure:"word_gap" yaml:"word_gap" validate:"gte=0"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// LLMConfig configures the text generator
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Model        string        `mapstructure:"model" yaml:"model" validate:"required"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	SystemPrompt string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	Temperature  float64       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=1"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// ServerConfig configures the websocket and metrics endpoints
type ServerConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr        string `mapstructure:"addr" yaml:"addr" validate:"hostname_port"`
	StreamPath  string `mapstructure:"stream_path" yaml:"stream_path" validate:"startswith=/"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path" validate:"startswith=/"`
}

// LogConfig configures logging
type LogConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Level   string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, _ := Dir()
	return &Config{
		Analysis: AnalysisConfig{
			FFTSize:               1024,
			MinDecibels:           -100,
			MaxDecibels:           -30,
			SmoothingTimeConstant: 0.8,
		},
		Bands: BandsConfig{
			Layout: "thirds",
		},
		Smoothing: SmoothingConfig{
			DefaultDamping: 0.3,
			Dampings:       map[string]float64{},
			Derived: []DerivedSpec{
				{Name: "mouthOpen", From: "bass", Gain: 1, Damping: 0.1},
				{Name: "amplitude", From: "level", Gain: 1, Damping: 1},
			},
		},
		Render: RenderConfig{
			FPS:      60,
			MaxDelta: 100 * time.Millisecond,
		},
		Persona: "hermes",
		Voice: VoiceConfig{
			Provider:  "espeak",
			Voice:     "en",
			Variant:   "m3",
			Amplitude: 100,
			Speed:     80,
			Pitch:     30,
			WordGap:   0,
			BaseURL:   "https://api.openai.com",
			Model:     "tts-1",
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.2",
			Temperature: 0.7,
			MaxTokens:   100,
			Timeout:     60 * time.Second,
		},
		Server: ServerConfig{
			Enabled:     false,
			Addr:        "127.0.0.1:8765",
			StreamPath:  "/ws",
			MetricsPath: "/metrics",
		},
		Log: LogConfig{
			Dir:     filepath.Join(dir, "logs"),
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from path, or from config.yaml in the config
// directory when path is empty. Environment variables prefixed AVATARSYNC_
// override both, e.g. AVATARSYNC_ANALYSIS_FFT_SIZE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// defaults are the base layer so every key is known to AutomaticEnv
	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("AVATARSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".avatarsync"), nil
}

// DefaultPath returns the default config file location
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
