// Package earshot wires configuration, the provider registry and the
// call transport into a runnable transcription engine.
package earshot

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Vendors     VendorsConfig    `mapstructure:"vendors"`
	Transports  TransportsConfig `mapstructure:"transports"`
	Audio       AudioConfig      `mapstructure:"audio"`
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFormat   string           `mapstructure:"log_format"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type AudioConfig struct {
	// SampleRate is the PCM rate handed to the STT backends after
	// transcoding, not the inbound telephony rate.
	SampleRate int    `mapstructure:"sample_rate"`
	Language   string `mapstructure:"language"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("transports.provider", "twilio")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.language", "en")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	return nil
}

// expandEnvStrings rewrites ${VAR} references so credentials can live
// in the environment rather than the config file.
func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
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
		for k, v := range val {
			val[k] = expandAny(v)
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
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
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
