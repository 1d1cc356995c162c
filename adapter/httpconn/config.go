package httpconn

import (
	"fmt"
	"time"
)

// Config for the HTTP connector.
type Config struct {
	// Timeout bounds one whole exchange, body included.
	Timeout time.Duration
	// UserAgent is sent unless the request sets its own.
	UserAgent string
	// MaxBodyBytes caps the response body kept in Response.Body; 0 keeps all.
	MaxBodyBytes int64
}

// Defaults returns a Config suitable for short request/response exchanges.
func Defaults() Config {
	return Config{
		Timeout:      30 * time.Second,
		UserAgent:    "xcaller-httpconn/1",
		MaxBodyBytes: 10 << 20,
	}
}

// Validate checks Config.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must be >= 0, got %v", c.Timeout)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("config: max_body_bytes must be >= 0, got %d", c.MaxBodyBytes)
	}
	return nil
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"timeout":        c.Timeout,
		"user_agent":     c.UserAgent,
		"max_body_bytes": c.MaxBodyBytes,
	}
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	switch v := m["timeout"].(type) {
	case time.Duration:
		c.Timeout = v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
	if v, ok := m["user_agent"].(string); ok && v != "" {
		c.UserAgent = v
	}
	switch v := m["max_body_bytes"].(type) {
	case int64:
		c.MaxBodyBytes = v
	case int:
		c.MaxBodyBytes = int64(v)
	case float64:
		c.MaxBodyBytes = int64(v)
	}
	return c
}
