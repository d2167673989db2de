// Package config loads stereoscope settings from an optional YAML file and
// STEREOSCOPE_* environment variables. Command line flags are applied on
// top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/stereoscope/internal/ingest/srt"
	"github.com/zsiec/stereoscope/internal/media"
	"github.com/zsiec/stereoscope/internal/player"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STEREOSCOPE_"

// LayoutAuto keeps the stereo layout detected from the input.
const LayoutAuto = "auto"

// Config holds the settings shared by all commands.
type Config struct {
	// SRTAddr is the listen address of the SRT ingest server.
	SRTAddr string `yaml:"srt_addr"`

	// APIAddr is the listen address of the HTTP control API. Empty
	// disables it.
	APIAddr string `yaml:"api_addr"`

	// StereoLayout overrides the detected layout, e.g. "left-right" or
	// "bottom-top-half". "auto" keeps the detected one.
	StereoLayout string `yaml:"stereo_layout"`

	// Audio plays the audio stream on a null device so that video is paced
	// by the audio clock.
	Audio bool `yaml:"audio"`

	// VideoThreads is the decoder thread count, 0 for FFmpeg's default.
	VideoThreads int `yaml:"video_threads"`

	// Tick is the playback loop interval.
	Tick time.Duration `yaml:"tick"`

	Debug bool `yaml:"debug"`

	// Pulls are remote SRT sources to pull when listening.
	Pulls []srt.PullRequest `yaml:"pulls"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		SRTAddr:      ":6000",
		APIAddr:      ":8080",
		StereoLayout: LayoutAuto,
		Audio:        true,
		Tick:         player.DefaultTick,
	}
}

// Load returns the defaults, overridden by the YAML file at path (if path
// is not empty) and then by the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.SRTAddr = envOr("SRT_ADDR", c.SRTAddr)
	c.APIAddr = envOr("API_ADDR", c.APIAddr)
	c.StereoLayout = envOr("STEREO_LAYOUT", c.StereoLayout)

	var err error
	if c.Audio, err = envBool("AUDIO", c.Audio); err != nil {
		return err
	}
	if c.Debug, err = envBool("DEBUG", c.Debug); err != nil {
		return err
	}
	if c.VideoThreads, err = envInt("VIDEO_THREADS", c.VideoThreads); err != nil {
		return err
	}
	if v := envOr("TICK", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTICK: %w", EnvPrefix, err)
		}
		c.Tick = d
	}
	return nil
}

// Validate checks value ranges and the stereo layout name.
func (c *Config) Validate() error {
	if _, _, _, err := c.Layout(); err != nil {
		return err
	}
	if c.VideoThreads < 0 {
		return fmt.Errorf("video_threads must not be negative, got %d", c.VideoThreads)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	return nil
}

// Layout parses StereoLayout. ok is false for "auto".
func (c *Config) Layout() (layout media.StereoLayout, swap, ok bool, err error) {
	if c.StereoLayout == "" || c.StereoLayout == LayoutAuto {
		return 0, false, false, nil
	}
	layout, swap, err = media.ParseStereoLayout(c.StereoLayout)
	if err != nil {
		return 0, false, false, fmt.Errorf("stereo_layout: %w", err)
	}
	return layout, swap, true, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := envOr(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	v := envOr(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}
