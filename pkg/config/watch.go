package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/catabozan/fdbridge/internal/logger"
)

// Watch re-reads the configuration whenever its file changes on disk and
// hands the fresh, validated config to fn. Invalid edits are logged and
// dropped; the last good configuration stays in effect.
//
// Only meaningful when the config was loaded from a file; without one the
// call is a no-op.
func Watch(v *viper.Viper, fn func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Debug("Config file changed", "file", e.Name, "op", e.Op.String())

		cfg, err := unmarshal(v)
		if err != nil {
			logger.Warn("Config reload failed", "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logger.Warn("Config reload rejected", "error", err)
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}
