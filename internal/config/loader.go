package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads the YAML config at path and applies defaults for anything
// not set. An empty path yields a pure-defaults configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stack.interface", "tun0")
	v.SetDefault("stack.queue_capacity", 10)
	v.SetDefault("stack.read_buffer_size", 2048)
	v.SetDefault("stack.full_tuple", false)

	v.SetDefault("http.body", "<html><body>Hello from tunstack</body></html>")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pattern", "%time [%level] %msg%n")
	v.SetDefault("log.time", "2006-01-02 15:04:05")
	v.SetDefault("log.appenders", []map[string]any{{"type": "console"}})
}
