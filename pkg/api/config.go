// Package api provides a read-only REST API over persisted dataset
// configuration documents.
package api

import "errors"

var (
	// ErrAPIAddrRequired is returned when no listen address is configured
	ErrAPIAddrRequired = errors.New("api address is required")
	// ErrBasePathRequired is returned when no dataset base path is configured
	ErrBasePathRequired = errors.New("api base path is required")
)

// Config represents API service configuration
type Config struct {
	Addr string `yaml:"addr" default:":8080" validate:"hostname_port"`
	// BasePath is the directory scanned for dataset configuration documents
	BasePath string `yaml:"basePath"`
}

// Validate validates the API configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrAPIAddrRequired
	}

	if c.BasePath == "" {
		return ErrBasePathRequired
	}

	return nil
}
