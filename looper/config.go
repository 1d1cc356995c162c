package looper

import (
	"fmt"
	"time"
)

// Config controls a Looper.
type Config struct {
	// Name labels log lines and stats.
	Name string
	// MaxPending bounds queued work; 0 means unbounded.
	MaxPending int
	// SlowTask logs tasks running longer than this; 0 disables.
	SlowTask time.Duration
}

// Defaults returns a Config for an unbounded main loop.
func Defaults() Config {
	return Config{
		Name:     "main",
		SlowTask: 100 * time.Millisecond,
	}
}

// Validate checks Config.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name required")
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("config: max_pending must be >= 0, got %d", c.MaxPending)
	}
	if c.SlowTask < 0 {
		return fmt.Errorf("config: slow_task must be >= 0, got %v", c.SlowTask)
	}
	return nil
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["name"].(string); ok && v != "" {
		c.Name = v
	}
	switch v := m["max_pending"].(type) {
	case int:
		c.MaxPending = v
	case int64:
		c.MaxPending = int(v)
	case float64:
		c.MaxPending = int(v)
	}
	switch v := m["slow_task"].(type) {
	case time.Duration:
		c.SlowTask = v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			c.SlowTask = d
		}
	}
	return c
}
