// Package config handles configuration loading using viper.
package config

import (
	"fmt"

	"github.com/nissy-dev/tunstack/internal/core"
	"github.com/nissy-dev/tunstack/internal/log"
)

// Config is the top-level configuration, mapped from the YAML file root.
type Config struct {
	Stack   StackConfig      `mapstructure:"stack"`
	HTTP    HTTPConfig       `mapstructure:"http"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
	Log     log.LoggerConfig `mapstructure:"log"`
}

// StackConfig controls the protocol stack itself.
type StackConfig struct {
	// Interface is the TUN interface name to create/attach, e.g. "tun0".
	Interface string `mapstructure:"interface"`
	// QueueCapacity is the capacity of every bounded queue between
	// pipeline stages. Small on purpose: a full queue blocks its
	// producer, which is the backpressure mechanism.
	QueueCapacity int `mapstructure:"queue_capacity"`
	// ReadBufferSize is the TUN read buffer size in bytes.
	ReadBufferSize int `mapstructure:"read_buffer_size"`
	// FullTuple keys connections by (src ip, src port, dst ip, dst port)
	// instead of the default (src port, dst port) pair.
	FullTuple bool `mapstructure:"full_tuple"`
}

// HTTPConfig controls the demo HTTP server riding on the stack.
type HTTPConfig struct {
	// Body served for every GET request.
	Body string `mapstructure:"body"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Validate checks invariants that viper cannot express.
func (c *Config) Validate() error {
	if c.Stack.Interface == "" {
		return fmt.Errorf("%w: stack.interface must not be empty", core.ErrConfigInvalid)
	}
	if len(c.Stack.Interface) >= 16 {
		return fmt.Errorf("%w: stack.interface %q exceeds IFNAMSIZ", core.ErrConfigInvalid, c.Stack.Interface)
	}
	if c.Stack.QueueCapacity <= 0 {
		return fmt.Errorf("%w: stack.queue_capacity must be positive", core.ErrConfigInvalid)
	}
	if c.Stack.ReadBufferSize < 576 {
		return fmt.Errorf("%w: stack.read_buffer_size below minimum IPv4 datagram size", core.ErrConfigInvalid)
	}
	return nil
}
