// Package config loads voxrelay settings from defaults, the stored
// settings file, an optional config file, VOXRELAY_* env vars and flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/stages"
)

const EnvPrefix = "VOXRELAY"

type Config struct {
	BackendURL    string              `mapstructure:"backend_url"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Recorder      RecorderConfig      `mapstructure:"recorder"`
	Playback      PlaybackConfig      `mapstructure:"playback"`
	UI            UIConfig            `mapstructure:"ui"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Server        ServerConfig        `mapstructure:"server"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
}

type HTTPConfig struct {
	// TimeoutMS of zero leaves stage requests unbounded.
	TimeoutMS int `mapstructure:"timeout_ms"`
}

type RecorderConfig struct {
	Source           string `mapstructure:"source"`
	File             string `mapstructure:"file"`
	FFmpegPath       string `mapstructure:"ffmpeg_path"`
	InputFormat      string `mapstructure:"input_format"`
	InputDevice      string `mapstructure:"input_device"`
	SampleRate       int    `mapstructure:"sample_rate"`
	FragmentSize     int    `mapstructure:"fragment_size"`
	StartupTimeoutMS int    `mapstructure:"startup_timeout_ms"`
	DrainTimeoutMS   int    `mapstructure:"drain_timeout_ms"`
}

type PlaybackConfig struct {
	Dir     string   `mapstructure:"dir"`
	Command []string `mapstructure:"command"`
}

type UIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ObservabilityConfig struct {
	ArtifactsDir     string `mapstructure:"artifacts_dir"`
	RetentionDays    int    `mapstructure:"retention_days"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	EnvFile        string `mapstructure:"env_file"`
	DrainTimeoutMS int    `mapstructure:"drain_timeout_ms"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// VendorsConfig selects the providers behind the dev backend.
type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	LLM VendorConfig `mapstructure:"llm"`
	TTS VendorConfig `mapstructure:"tts"`
}

// Options control where Load looks.
type Options struct {
	// Path is an explicit config file. When empty, voxrelay.{yaml,toml,json}
	// is searched in the working and user config directories.
	Path string
	// Store supplies the persisted backend URL. Nil skips it.
	Store *Store
	// Overrides are applied last, typically from command-line flags.
	Overrides map[string]any
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", stages.DefaultBaseURL)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("http.timeout_ms", 0)
	v.SetDefault("recorder.source", "ffmpeg")
	v.SetDefault("recorder.file", "")
	v.SetDefault("recorder.ffmpeg_path", "ffmpeg")
	v.SetDefault("recorder.input_format", "")
	v.SetDefault("recorder.input_device", "")
	v.SetDefault("recorder.sample_rate", 48000)
	v.SetDefault("recorder.fragment_size", 4096)
	v.SetDefault("recorder.startup_timeout_ms", 3000)
	v.SetDefault("recorder.drain_timeout_ms", 5000)
	v.SetDefault("playback.dir", filepath.Join(os.TempDir(), "voxrelay"))
	v.SetDefault("playback.command", []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"})
	v.SetDefault("ui.enabled", false)
	v.SetDefault("ui.addr", "127.0.0.1:8765")
	v.SetDefault("ui.allowed_origins", []string{})
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.metrics_namespace", "voxrelay")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("server.env_file", ".env")
	v.SetDefault("server.drain_timeout_ms", 10000)
	v.SetDefault("vendors.stt.provider", "mock")
	v.SetDefault("vendors.llm.provider", "mock")
	v.SetDefault("vendors.tts.provider", "mock")
}

// Load resolves the effective configuration.
func Load(opts Options) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.Store != nil {
		stored, err := opts.Store.Load()
		if err != nil {
			return Config{}, err
		}
		// Stored values sit between built-in defaults and the config file.
		if stored.BackendURL != "" {
			v.SetDefault("backend_url", stored.BackendURL)
		}
	}

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Errorf(errorsx.ReasonConfigInvalid, "read config: %w", err)
		}
	} else {
		v.SetConfigName("voxrelay")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "voxrelay"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errorsx.Errorf(errorsx.ReasonConfigInvalid, "read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Errorf(errorsx.ReasonConfigInvalid, "unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)
	cfg.BackendURL = stages.NormalizeBaseURL(cfg.BackendURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfigInvalid)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := ValidateBackendURL(c.BackendURL); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.HTTP.TimeoutMS < 0 {
		return fmt.Errorf("http.timeout_ms must be >= 0")
	}
	switch c.Recorder.Source {
	case "ffmpeg", "file":
	default:
		return fmt.Errorf("recorder.source must be ffmpeg or file, got %q", c.Recorder.Source)
	}
	if c.Recorder.FragmentSize <= 0 {
		return fmt.Errorf("recorder.fragment_size must be > 0")
	}
	for name, vc := range map[string]VendorConfig{"stt": c.Vendors.STT, "llm": c.Vendors.LLM, "tts": c.Vendors.TTS} {
		if strings.TrimSpace(vc.Provider) == "" {
			return fmt.Errorf("vendors.%s.provider is required", name)
		}
	}
	return nil
}

// ValidateBackendURL accepts absolute http(s) URLs only.
func ValidateBackendURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("backend_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend_url must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

// StageTimeout is the per-request stage timeout; zero means none.
func (c Config) StageTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutMS) * time.Millisecond
}

func (c Config) RecorderStartupTimeout() time.Duration {
	return time.Duration(c.Recorder.StartupTimeoutMS) * time.Millisecond
}

func (c Config) RecorderDrainTimeout() time.Duration {
	return time.Duration(c.Recorder.DrainTimeoutMS) * time.Millisecond
}

func (c Config) ServerDrainTimeout() time.Duration {
	return time.Duration(c.Server.DrainTimeoutMS) * time.Millisecond
}

// Retention is how long timeline and playback files are kept; zero keeps
// them forever.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Observability.RetentionDays) * 24 * time.Hour
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = expandAny(item)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
