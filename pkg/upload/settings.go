package upload

import (
	"fmt"
	"time"

	"github.com/faheemlabs/faheem/pkg/configutil"
	"github.com/faheemlabs/faheem/pkg/resilience"
)

// Settings is the free-form tuning block for the selector as it appears
// under upload.settings in the config file.
type Settings struct {
	ThresholdBytes int64 `mapstructure:"threshold_bytes"`
	MaxRetries     int   `mapstructure:"max_retries"`
	RetryBackoffMS int   `mapstructure:"retry_backoff_ms"`
}

var settingsSchema = configutil.Schema{
	Optional: []string{"threshold_bytes", "max_retries", "retry_backoff_ms"},
}

// OptionsFromSettings validates the raw settings map and turns it into
// selector options. Unknown keys are rejected so a typo in the config
// file fails at startup instead of being silently ignored.
func OptionsFromSettings(input map[string]any) ([]Option, error) {
	if err := configutil.ValidateSettings(input, settingsSchema); err != nil {
		return nil, fmt.Errorf("upload.settings: %w", err)
	}
	var s Settings
	if err := configutil.DecodeSettings(input, &s); err != nil {
		return nil, fmt.Errorf("upload.settings: %w", err)
	}
	if s.ThresholdBytes < 0 {
		return nil, fmt.Errorf("upload.settings: threshold_bytes must be positive")
	}
	var opts []Option
	if s.ThresholdBytes > 0 {
		opts = append(opts, WithThreshold(s.ThresholdBytes))
	}
	if s.MaxRetries > 0 || s.RetryBackoffMS > 0 {
		backoff := time.Duration(s.RetryBackoffMS) * time.Millisecond
		opts = append(opts, WithRetryPolicy(resilience.NewRetryPolicy(s.MaxRetries, backoff)))
	}
	return opts, nil
}
