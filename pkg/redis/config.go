// Package redis provides Redis client configuration
package redis

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Define static errors
var (
	ErrURLRequired = errors.New("redis url is required")
)

// Config holds Redis client configuration. Redis is optional for one-shot
// downloads and required for watch mode with more than one watcher.
type Config struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix" default:"geofetch"`
}

// Enabled reports whether a Redis URL was configured
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if c.Prefix == "" {
		c.Prefix = "geofetch"
	}

	return nil
}

// PrefixKey adds the configured prefix to a Redis key
func (c *Config) PrefixKey(key string) string {
	if c.Prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", c.Prefix, key)
}

// NewClient validates the configuration and connects a client. The
// connection is established lazily on the first command.
func NewClient(c *Config) (*redis.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	opt, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return redis.NewClient(opt), nil
}
