// Package memory provides config values held in memory, for tests and for
// components that are configured programmatically.
package memory

import (
	"context"
	"sync"

	"github.com/code-payments/code-runtime/pkg/config"
	"github.com/code-payments/code-runtime/pkg/config/wrapper"
)

// Config is a mutable in memory config value
type Config struct {
	mu       sync.RWMutex
	value    interface{}
	shutdown bool
}

// NewConfig returns a new in memory config. A nil value means no value is
// set. Typed wrappers only convert the types they know about, so prefer
// NewUint64Config and friends.
func NewConfig(value interface{}) *Config {
	return &Config{
		value: value,
	}
}

// NewUint64Config returns a typed config holding value
func NewUint64Config(value uint64, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(value), defaultValue)
}

// NewBoolConfig returns a typed config holding value
func NewBoolConfig(value bool, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(value), defaultValue)
}

// Get implements Config.Get
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.shutdown:
		return nil, config.ErrShutdown
	case c.value == nil:
		return nil, config.ErrNoValue
	default:
		return c.value, nil
	}
}

// Shutdown implements Config.Shutdown
func (c *Config) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
}

// SetValue sets the value returned by subsequent Get calls
func (c *Config) SetValue(value interface{}) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// ClearValue makes subsequent Get calls return config.ErrNoValue
func (c *Config) ClearValue() {
	c.SetValue(nil)
}
