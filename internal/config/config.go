// Package config loads the host-configurable pieces of the pipeline
// from a YAML file, in the "defaults then override" style of the xg2g
// example's internal/config package.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the spec names as legitimately external to
// the core pipeline's own hardcoded contracts (§10.3).
type Config struct {
	LogLevel string `yaml:"logLevel,omitempty"`

	Surface SurfaceConfig `yaml:"surface,omitempty"`
	Heap    HeapConfig    `yaml:"heap,omitempty"`
	FIFO    FIFOConfig    `yaml:"fifo,omitempty"`
	Video   VideoConfig   `yaml:"video,omitempty"`
	Audio   AudioConfig   `yaml:"audio,omitempty"`
	Subtitle SubtitleConfig `yaml:"subtitle,omitempty"`
	CC      CCConfig      `yaml:"cc,omitempty"`
}

type SurfaceConfig struct {
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
}

type HeapConfig struct {
	Pictures    int `yaml:"pictures,omitempty"`
	Subpictures int `yaml:"subpictures,omitempty"`
}

type FIFOConfig struct {
	MaxBytes  int64 `yaml:"maxBytes,omitempty"`
	PaceDepth int   `yaml:"paceDepth,omitempty"`
}

// Durations are specified in the YAML file as plain integer
// nanoseconds (yaml.v3 has no built-in time.Duration string decoding).
type VideoConfig struct {
	DisplayDelay time.Duration `yaml:"displayDelayNs,omitempty"`
	IdleSleep    time.Duration `yaml:"idleSleepNs,omitempty"`
}

type AudioConfig struct {
	MaxPrepareTime time.Duration `yaml:"maxPrepareTimeNs,omitempty"`
	MaxInputRate   int           `yaml:"maxInputRate,omitempty"`
}

type SubtitleConfig struct {
	MaxPrepareTime time.Duration `yaml:"maxPrepareTimeNs,omitempty"`
}

type CCConfig struct {
	Enabled [4]bool `yaml:"enabled,omitempty"`
}

// Defaults returns the built-in defaults applied before any file
// override, matching §4/§5's literal constants (400 MiB FIFO ceiling,
// paced depth 10, ~100ms display delay, ~20ms idle sleep).
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Surface:  SurfaceConfig{Width: 640, Height: 480},
		Heap:     HeapConfig{Pictures: 16, Subpictures: 16},
		FIFO:     FIFOConfig{MaxBytes: 400 * 1024 * 1024, PaceDepth: 10},
		Video:    VideoConfig{DisplayDelay: 100 * time.Millisecond, IdleSleep: 20 * time.Millisecond},
		Audio:    AudioConfig{MaxPrepareTime: 200 * time.Millisecond, MaxInputRate: 4},
		Subtitle: SubtitleConfig{MaxPrepareTime: 200 * time.Millisecond},
	}
}

// Load reads a YAML config file at path, applying its fields over
// Defaults(). A missing file is not an error: Defaults() alone is
// returned, matching the common "config is optional" CLI convenience.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
