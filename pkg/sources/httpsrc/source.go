// Package httpsrc fetches one file per date from a templated URL
package httpsrc

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/location"
	"github.com/geofetch/geofetch/pkg/rendering"
	"github.com/geofetch/geofetch/pkg/sources"
	"github.com/geofetch/geofetch/pkg/sources/transport"
)

// ErrURLTemplateRequired is returned when no URL template is configured
var ErrURLTemplateRequired = errors.New("http source requires a url template")

// Config describes where dated files live
type Config struct {
	// URLTemplate is rendered once per date, e.g.
	// https://host/{{.year}}/{{.month}}/{{.var.prefix}}_{{.ymd}}.nc
	URLTemplate string `yaml:"urlTemplate"`
	// FileTemplate names the local file; defaults to the URL's base name
	FileTemplate string           `yaml:"fileTemplate"`
	Transport    transport.Config `yaml:"transport"`
}

// Validate checks the templates parse
func (c *Config) Validate() error {
	if c.URLTemplate == "" {
		return ErrURLTemplateRequired
	}

	engine := rendering.NewTemplateEngine()
	if err := engine.Check(c.URLTemplate); err != nil {
		return fmt.Errorf("url template: %w", err)
	}

	if c.FileTemplate != "" {
		if err := engine.Check(c.FileTemplate); err != nil {
			return fmt.Errorf("file template: %w", err)
		}
	}

	return nil
}

// Source downloads per-date files over HTTP(S)
type Source struct {
	log        logrus.FieldLogger
	cfg        Config
	identifier string
	region     location.Region
	client     *transport.Client
	templates  *rendering.TemplateEngine
}

// New creates an HTTP source for the dataset identified by identifier
func New(log logrus.FieldLogger, cfg Config, identifier string, region location.Region, client *transport.Client) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Source{
		log:        log.WithField("component", "http_source"),
		cfg:        cfg,
		identifier: identifier,
		region:     region,
		client:     client,
		templates:  rendering.NewTemplateEngine(),
	}, nil
}

// Fetch implements download.Fetcher. Existing local files are reused; failed
// dates are recorded as missing and the successful paths returned.
func (s *Source) Fetch(ctx context.Context, unit download.WorkUnit, missing *download.MissingDates) ([]string, error) {
	var out []string

	for _, date := range unit.Dates {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		vars := s.templates.BuildVariables(s.identifier, s.region, unit.Slot, date)

		url, err := s.templates.Render(s.cfg.URLTemplate, vars)
		if err != nil {
			return out, fmt.Errorf("render url: %w", err)
		}

		name := path.Base(url)
		if s.cfg.FileTemplate != "" {
			if name, err = s.templates.Render(s.cfg.FileTemplate, vars); err != nil {
				return out, fmt.Errorf("render file name: %w", err)
			}
		}

		dest := filepath.Join(sources.DownloadDir(unit.Slot), name)
		log := s.log.WithFields(logrus.Fields{
			"url":  url,
			"path": dest,
		})

		if sources.LocalSize(dest) >= 0 {
			log.Debug("File already downloaded")
			out = append(out, dest)

			continue
		}

		if _, err := s.client.Download(ctx, url, dest); err != nil {
			log.WithError(err).Warn("Failed to download file")
			missing.Add(date)

			continue
		}

		log.Info("Downloaded file")
		out = append(out, dest)
	}

	return out, nil
}

var _ download.Fetcher = (*Source)(nil)
