package download

import (
	"errors"
	"fmt"

	"github.com/geofetch/geofetch/pkg/frequency"
)

var (
	// ErrInvalidWorkers is returned when the worker count is not positive
	ErrInvalidWorkers = errors.New("workers must be at least 1")
	// ErrInvalidFrequencyRange is returned when the source frequency bounds are inverted
	ErrInvalidFrequencyRange = errors.New("invalid source frequency range")
)

// Config controls how an acquisition run is planned and dispatched
type Config struct {
	// Workers bounds the number of fetch units in flight
	Workers int `yaml:"workers" default:"1"`
	// RequestFrequency is the batching granularity asked for by the caller
	RequestFrequency frequency.Frequency `yaml:"requestFrequency"`
	// SourceMinFrequency is the coarsest batching the source accepts
	SourceMinFrequency frequency.Frequency `yaml:"sourceMinFrequency"`
	// SourceMaxFrequency is the finest batching the source accepts
	SourceMaxFrequency frequency.Frequency `yaml:"sourceMaxFrequency"`
	// DryRun plans the work without dispatching it
	DryRun bool `yaml:"dryRun"`
	// Refetch requests dates already present in canonical files, so late
	// corrections can be merged in
	Refetch bool `yaml:"refetch"`
	// Ranges are the inclusive date ranges to acquire
	Ranges []DateRange `yaml:"-"`
}

// SetDefaults fills unset fields. Batching defaults to monthly requests
// against a source that accepts anything from yearly to daily batches.
func (c *Config) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = 1
	}

	if c.RequestFrequency == 0 {
		c.RequestFrequency = frequency.Month
	}

	if c.SourceMinFrequency == 0 {
		c.SourceMinFrequency = frequency.Year
	}

	if c.SourceMaxFrequency == 0 {
		c.SourceMaxFrequency = frequency.Day
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}

	for _, f := range []frequency.Frequency{c.RequestFrequency, c.SourceMinFrequency, c.SourceMaxFrequency} {
		if !f.Valid() {
			return fmt.Errorf("%w: %d", frequency.ErrUnknownFrequency, int(f))
		}
	}

	if c.SourceMinFrequency.FinerThan(c.SourceMaxFrequency) {
		return fmt.Errorf("%w: source minimum %s is finer than maximum %s", ErrInvalidFrequencyRange, c.SourceMinFrequency, c.SourceMaxFrequency)
	}

	if len(c.Ranges) == 0 {
		return fmt.Errorf("%w: no date ranges", ErrInvalidDateRange)
	}

	for _, r := range c.Ranges {
		if r.End.Before(r.Start) {
			return fmt.Errorf("%w: %s is after %s", ErrInvalidDateRange, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
		}
	}

	return nil
}

// EffectiveRequestFrequency snaps the requested batching into the range the
// source supports
func (c *Config) EffectiveRequestFrequency() frequency.Frequency {
	return c.RequestFrequency.Clamp(c.SourceMinFrequency, c.SourceMaxFrequency)
}
