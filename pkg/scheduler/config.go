// Package scheduler runs acquisition jobs on a schedule for watch mode
package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoJobs is returned when watch mode is started without any job
	ErrNoJobs = errors.New("at least one scheduled job is required")
	// ErrDuplicateJob is returned when two jobs share a name
	ErrDuplicateJob = errors.New("duplicate job name")
	// ErrInvalidLookback is returned when a job's lookback is not positive
	ErrInvalidLookback = errors.New("lookback must be positive")
)

// Config defines scheduler configuration
type Config struct {
	Jobs         []JobConfig   `yaml:"jobs" validate:"dive"`
	TickInterval time.Duration `yaml:"tickInterval" default:"1s"`
	JobTimeout   time.Duration `yaml:"jobTimeout" default:"6h"`
	// LeaseTTL bounds how long a crashed leader blocks other watchers
	LeaseTTL      time.Duration `yaml:"leaseTTL" default:"10s"`
	RenewInterval time.Duration `yaml:"renewInterval" default:"3s"`
}

// JobConfig describes one periodic acquisition
type JobConfig struct {
	Name string `yaml:"name" validate:"required"`
	// Dataset is the path to a persisted dataset configuration document
	Dataset string `yaml:"dataset" validate:"required"`
	// Source selects the fetch strategy: http, ftp, s3, esgf or cds
	Source string `yaml:"source" validate:"required,oneof=http ftp s3 esgf cds"`
	// Schedule is a cron expression or an @every descriptor
	Schedule string `yaml:"schedule" validate:"required"`
	// Lookback is how far behind the current day each run requests
	Lookback time.Duration `yaml:"lookback"`
	// Refetch requests stored dates inside the lookback again so that
	// upstream corrections replace earlier values
	Refetch bool `yaml:"refetch"`
	Workers int  `yaml:"workers"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if len(c.Jobs) == 0 {
		return ErrNoJobs
	}

	seen := make(map[string]bool, len(c.Jobs))

	for i := range c.Jobs {
		job := &c.Jobs[i]

		if seen[job.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
		}
		seen[job.Name] = true

		if job.Lookback == 0 {
			job.Lookback = 72 * time.Hour
		}

		if job.Lookback < 0 {
			return fmt.Errorf("%w: job %s", ErrInvalidLookback, job.Name)
		}

		if job.Workers <= 0 {
			job.Workers = 1
		}

		if _, err := parseSchedule(job.Schedule); err != nil {
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
	}

	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}

	if c.RenewInterval <= 0 {
		c.RenewInterval = 3 * time.Second
	}

	if c.LeaseTTL <= c.RenewInterval {
		c.LeaseTTL = c.RenewInterval * 3
	}

	return nil
}
