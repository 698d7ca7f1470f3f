// Package cds retrieves reanalysis data through the Copernicus Climate Data
// Store: a request is submitted as a job, polled until it completes and the
// resulting file downloaded.
package cds

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/location"
	"github.com/geofetch/geofetch/pkg/sources"
	"github.com/geofetch/geofetch/pkg/sources/transport"
)

var (
	// ErrURLRequired is returned when no API endpoint is configured
	ErrURLRequired = errors.New("cds source requires an api url")
	// ErrUnknownVariable is returned for a variable with no CDS name
	ErrUnknownVariable = errors.New("variable has no data store name")
)

// DefaultVariables maps short variable names to data store variable names
//
//nolint:gochecknoglobals // read-only lookup table
var DefaultVariables = map[string]string{
	"tas":  "2m_temperature",
	"ta":   "temperature",
	"tos":  "sea_surface_temperature",
	"ps":   "surface_pressure",
	"zg":   "geopotential",
	"hus":  "specific_humidity",
	"rlds": "surface_thermal_radiation_downwards",
	"rsds": "surface_solar_radiation_downwards",
	"uas":  "10m_u_component_of_wind",
	"vas":  "10m_v_component_of_wind",
	"ua":   "u_component_of_wind",
	"va":   "v_component_of_wind",
	"sic":  "sea_ice_cover",
	"psl":  "mean_sea_level_pressure",
}

// Config describes the data store and the request defaults
type Config struct {
	URL string `yaml:"url" default:"https://cds.climate.copernicus.eu/api"`
	// Key is the personal access token sent as PRIVATE-TOKEN
	Key string `yaml:"key"`
	// Dataset overrides the reanalysis-era5-* collection derived from the
	// storage frequency and variable level
	Dataset     string `yaml:"dataset"`
	ProductType string `yaml:"productType"`
	// Times are request hours such as "12:00"; "all" asks for every hour
	Times []string  `yaml:"times"`
	Grid  []float64 `yaml:"grid"`
	// Variables adds to or overrides DefaultVariables
	Variables    map[string]string `yaml:"variables"`
	PollInterval time.Duration     `yaml:"pollInterval" default:"5s"`
	Transport    transport.Config  `yaml:"transport"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}

	return nil
}

// TransportConfig returns the HTTP settings with the access token attached
func (c *Config) TransportConfig() transport.Config {
	tc := c.Transport
	tc.Headers = maps.Clone(c.Transport.Headers)

	if c.Key != "" {
		if tc.Headers == nil {
			tc.Headers = map[string]string{}
		}
		tc.Headers["PRIVATE-TOKEN"] = c.Key
	}

	return tc
}

// Source submits one retrieve job per work unit
type Source struct {
	log       logrus.FieldLogger
	cfg       Config
	region    location.Region
	storage   frequency.Frequency
	client    *transport.Client
	variables map[string]string
}

// New creates a CDS source for a dataset stored at the given frequency
func New(log logrus.FieldLogger, cfg Config, region location.Region, storage frequency.Frequency, client *transport.Client) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	variables := maps.Clone(DefaultVariables)
	maps.Copy(variables, cfg.Variables)

	return &Source{
		log:       log.WithField("component", "cds_source"),
		cfg:       cfg,
		region:    region,
		storage:   storage,
		client:    client,
		variables: variables,
	}, nil
}

// CheckVariables fails for the first prefix that has no data store name
func (s *Source) CheckVariables(prefixes ...string) error {
	for _, p := range prefixes {
		if _, ok := s.variables[p]; !ok {
			return fmt.Errorf("%w: %q, known: %v", ErrUnknownVariable, p, slices.Sorted(maps.Keys(s.variables)))
		}
	}

	return nil
}

// Fetch implements download.Fetcher. A failed or rejected job marks every
// date of the unit missing. Requests cover a single year, so a batch
// crossing a year boundary is rejected outright.
func (s *Source) Fetch(ctx context.Context, unit download.WorkUnit, missing *download.MissingDates) ([]string, error) {
	if len(unit.Dates) == 0 {
		return nil, nil
	}

	if sources.SpansYears(unit.Dates) {
		return nil, fmt.Errorf("%w: %s", sources.ErrBatchSpansYears, unit)
	}

	collection, inputs, err := s.request(unit.Slot, unit.Dates)
	if err != nil {
		return nil, err
	}

	first := slices.MinFunc(unit.Dates, time.Time.Compare)
	last := slices.MaxFunc(unit.Dates, time.Time.Compare)

	dir := sources.DownloadDir(unit.Slot)
	name := fmt.Sprintf("%s_%s-%s.nc", unit.Slot.Name, s.storage.Format(first), s.storage.Format(last))
	dest := filepath.Join(dir, name)

	log := s.log.WithFields(logrus.Fields{
		"variable": unit.Slot.Name,
		"dataset":  collection,
		"dates":    len(unit.Dates),
	})

	if sources.LocalSize(dest) >= 0 {
		log.WithField("path", dest).Debug("File already downloaded")
		return []string{dest}, nil
	}

	log.WithField("request", inputs).Debug("Submitting retrieve request")

	href, err := s.retrieve(ctx, collection, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.WithError(err).Error("Retrieve request failed")
		missing.Add(unit.Dates...)

		return nil, nil
	}

	tmp := filepath.Join(dir, "temp."+name)
	defer os.Remove(tmp) //nolint:errcheck // absent when tidy consumed it

	if _, err := s.client.Download(ctx, href, tmp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.WithError(err).Error("Failed to download job result")
		missing.Add(unit.Dates...)

		return nil, nil
	}

	if err := tidy(tmp, dest, unit.Slot.Prefix); err != nil {
		return nil, err
	}

	log.WithField("path", dest).Info("Downloaded file")

	return []string{dest}, nil
}

var _ download.Fetcher = (*Source)(nil)
