package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Poll          PollConfig          `mapstructure:"poll"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Worklist      WorklistConfig      `mapstructure:"worklist"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// BackendConfig points the pipeline at the relay endpoint that fronts
// the Gemini API.
type BackendConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// UploadConfig carries the selector tuning as a free-form settings map.
// The upload package owns the schema and decodes it at wiring time.
type UploadConfig struct {
	Settings map[string]any `mapstructure:"settings"`
}

type PollConfig struct {
	IntervalMS int `mapstructure:"interval_ms"`
	MaxWaitMS  int `mapstructure:"max_wait_ms"`
}

// RelayConfig carries the forwarder tuning as a free-form settings map,
// validated and decoded by the relay package.
type RelayConfig struct {
	Addr     string         `mapstructure:"addr"`
	Settings map[string]any `mapstructure:"settings"`
}

type WorklistConfig struct {
	Addr string `mapstructure:"addr"`
}

type ObservabilityConfig struct {
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("backend.endpoint", "http://localhost:3001")
	v.SetDefault("backend.model", "gemini-2.5-flash")
	v.SetDefault("upload.settings.threshold_bytes", 50<<20)
	v.SetDefault("upload.settings.max_retries", 2)
	v.SetDefault("upload.settings.retry_backoff_ms", 200)
	v.SetDefault("poll.interval_ms", 5000)
	v.SetDefault("poll.max_wait_ms", 0)
	v.SetDefault("relay.addr", ":3001")
	v.SetDefault("relay.settings.upstream_origin", "https://generativelanguage.googleapis.com")
	v.SetDefault("relay.settings.max_body_bytes", 500<<20)
	v.SetDefault("relay.settings.outbound_timeout_ms", 300000)
	v.SetDefault("worklist.addr", ":8080")
	v.SetDefault("observability.artifacts_dir", "")

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
	if strings.TrimSpace(c.Backend.Endpoint) == "" {
		return fmt.Errorf("backend.endpoint is required")
	}
	if c.Poll.IntervalMS <= 0 {
		return fmt.Errorf("poll.interval_ms must be positive")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
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
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		// Settings maps hold interface values, so string entries are
		// replaced rather than set in place.
		for _, key := range v.MapKeys() {
			elem := v.MapIndex(key)
			if elem.Kind() == reflect.Interface {
				elem = elem.Elem()
			}
			if elem.Kind() == reflect.String {
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(elem.String())))
			}
		}
	}
}
