package redisbridge

import (
	"fmt"
	"os"
	"time"
)

// Config for the Redis Streams bridge.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// Stream shared by every bridged process.
	Stream string
	// Group is this process's consumer group. Each process needs its own
	// group to see every envelope; sharing a group load-balances instead.
	Group      string
	Consumer   string
	BatchSize  int
	Block      time.Duration
	AutoCreate bool

	// MaxLenApprox trims the stream on publish; 0 disables.
	MaxLenApprox int64

	// Codec names the payload codec registered with xcaller.
	Codec string
}

// Defaults returns a Config with a per-process group.
func Defaults() Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "xcaller"
	}
	id := fmt.Sprintf("xcaller-%s-%d", hostname, os.Getpid())

	return Config{
		Addr:         "127.0.0.1:6379",
		Stream:       "xcaller:actions",
		Group:        id,
		Consumer:     id,
		BatchSize:    64,
		Block:        2 * time.Second,
		AutoCreate:   true,
		MaxLenApprox: 10000,
		Codec:        "json",
	}
}

// Validate checks Config.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.Stream == "" {
		return fmt.Errorf("config: stream required")
	}
	if c.Group == "" {
		return fmt.Errorf("config: group required")
	}
	if c.Consumer == "" {
		return fmt.Errorf("config: consumer required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.Block <= 0 {
		return fmt.Errorf("config: block must be > 0, got %v", c.Block)
	}
	if c.Codec == "" {
		return fmt.Errorf("config: codec required")
	}
	return nil
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := m["stream"].(string); ok && v != "" {
		c.Stream = v
	}
	if v, ok := m["group"].(string); ok && v != "" {
		c.Group = v
	}
	if v, ok := m["consumer"].(string); ok && v != "" {
		c.Consumer = v
	}
	if v, ok := m["batch_size"].(int); ok && v > 0 {
		c.BatchSize = v
	}
	switch v := m["block"].(type) {
	case time.Duration:
		if v > 0 {
			c.Block = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Block = d
		}
	}
	if v, ok := m["auto_create"].(bool); ok {
		c.AutoCreate = v
	}
	if v, ok := m["max_len_approx"].(int64); ok && v >= 0 {
		c.MaxLenApprox = v
	}
	if v, ok := m["codec"].(string); ok && v != "" {
		c.Codec = v
	}
	return c
}
