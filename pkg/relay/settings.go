package relay

import (
	"fmt"
	"time"

	"github.com/faheemlabs/faheem/pkg/configutil"
)

// Settings is the free-form tuning block for the forwarder as it
// appears under relay.settings in the config file.
type Settings struct {
	UpstreamOrigin    string `mapstructure:"upstream_origin"`
	KeyPrefix         string `mapstructure:"key_prefix"`
	MaxBodyBytes      int64  `mapstructure:"max_body_bytes"`
	OutboundTimeoutMS int    `mapstructure:"outbound_timeout_ms"`
}

var settingsSchema = configutil.Schema{
	Optional: []string{"upstream_origin", "key_prefix", "max_body_bytes", "outbound_timeout_ms"},
}

// ConfigFromSettings validates the raw settings map and applies it on
// top of the base config. Zero values fall back to the handler
// defaults.
func ConfigFromSettings(base Config, input map[string]any) (Config, error) {
	if err := configutil.ValidateSettings(input, settingsSchema); err != nil {
		return Config{}, fmt.Errorf("relay.settings: %w", err)
	}
	var s Settings
	if err := configutil.DecodeSettings(input, &s); err != nil {
		return Config{}, fmt.Errorf("relay.settings: %w", err)
	}
	if s.UpstreamOrigin != "" {
		base.UpstreamOrigin = s.UpstreamOrigin
	}
	if s.KeyPrefix != "" {
		base.KeyPrefix = s.KeyPrefix
	}
	if s.MaxBodyBytes > 0 {
		base.MaxBodyBytes = s.MaxBodyBytes
	}
	if s.OutboundTimeoutMS > 0 {
		base.OutboundTimeout = time.Duration(s.OutboundTimeoutMS) * time.Millisecond
	}
	return base, nil
}
