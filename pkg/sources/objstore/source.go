// Package objstore fetches dated NetCDF objects from S3 compatible storage
package objstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/location"
	"github.com/geofetch/geofetch/pkg/rendering"
	"github.com/geofetch/geofetch/pkg/sources"
)

var (
	// ErrBucketRequired is returned when no bucket is configured
	ErrBucketRequired = errors.New("object storage source requires a bucket")
	// ErrPrefixRequired is returned when no prefix template is configured
	ErrPrefixRequired = errors.New("object storage source requires a prefix template")
)

// Config describes a bucket of dated objects
type Config struct {
	Endpoint  string `yaml:"endpoint" default:"s3.amazonaws.com"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL" default:"true"`
	// PrefixTemplate is rendered per date to the listing prefix, e.g.
	// e5.oper.an.pl/{{.year}}{{.month}}/
	PrefixTemplate string `yaml:"prefixTemplate"`
	// MatchTemplate is rendered per slot; only keys containing it are fetched
	MatchTemplate string `yaml:"matchTemplate"`
	// CacheOnly uses previously downloaded objects and never transfers
	CacheOnly bool `yaml:"cacheOnly"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}

	if c.PrefixTemplate == "" {
		return ErrPrefixRequired
	}

	engine := rendering.NewTemplateEngine()
	for _, tmpl := range []string{c.PrefixTemplate, c.MatchTemplate} {
		if err := engine.Check(tmpl); err != nil {
			return err
		}
	}

	return nil
}

// objects carry their validity window as the final dotted component before
// the extension, e.g. ...ll025sc.2020010100_2020013123.nc
var keyRange = regexp.MustCompile(`\.(\d{10})_(\d{10})\.nc$`)

const keyTimeLayout = "2006010215"

// covers reports whether the object's time window contains date. Keys
// without a window are assumed to cover every date under their prefix.
func covers(key string, date time.Time) bool {
	m := keyRange.FindStringSubmatch(key)
	if m == nil {
		return true
	}

	start, err := time.Parse(keyTimeLayout, m[1])
	if err != nil {
		return false
	}

	end, err := time.Parse(keyTimeLayout, m[2])
	if err != nil {
		return false
	}

	return !date.Before(start.Truncate(24*time.Hour)) && !date.After(end)
}

// Source downloads objects matching each requested date
type Source struct {
	log        logrus.FieldLogger
	cfg        Config
	identifier string
	region     location.Region
	store      Store
	templates  *rendering.TemplateEngine

	listMu   sync.Mutex
	listings map[string][]Object
}

// New creates an object storage source
func New(log logrus.FieldLogger, cfg Config, identifier string, region location.Region, store Store) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Source{
		log: log.WithFields(logrus.Fields{
			"component": "object_source",
			"bucket":    cfg.Bucket,
		}),
		cfg:        cfg,
		identifier: identifier,
		region:     region,
		store:      store,
		templates:  rendering.NewTemplateEngine(),
		listings:   make(map[string][]Object),
	}, nil
}

// Fetch implements download.Fetcher. Objects already on disk with a matching
// size are not transferred again.
func (s *Source) Fetch(ctx context.Context, unit download.WorkUnit, missing *download.MissingDates) ([]string, error) {
	var (
		out    []string
		done   = make(map[string]bool)
		failed = make(map[string]bool)
	)

	for _, date := range unit.Dates {
		vars := s.templates.BuildVariables(s.identifier, s.region, unit.Slot, date)

		prefix, err := s.templates.Render(s.cfg.PrefixTemplate, vars)
		if err != nil {
			return out, fmt.Errorf("render prefix: %w", err)
		}

		match, err := s.templates.Render(s.cfg.MatchTemplate, vars)
		if err != nil {
			return out, fmt.Errorf("render match: %w", err)
		}

		log := s.log.WithFields(logrus.Fields{
			"variable": unit.Slot.Name,
			"date":     date.Format(time.DateOnly),
			"prefix":   prefix,
		})

		listing, err := s.list(ctx, prefix)
		if err != nil {
			log.WithError(err).Warn("Failed to list objects")
			missing.Add(date)

			continue
		}

		satisfied := false

		for _, obj := range listing {
			if !strings.HasSuffix(obj.Key, ".nc") || !strings.Contains(obj.Key, match) || !covers(obj.Key, date) {
				continue
			}

			if failed[obj.Key] {
				continue
			}

			if done[obj.Key] {
				satisfied = true
				continue
			}

			dest := filepath.Join(sources.DownloadDir(unit.Slot), path.Base(obj.Key))

			if err := s.fetchObject(ctx, obj, dest); err != nil {
				log.WithError(err).WithField("key", obj.Key).Warn("Failed to fetch object")
				failed[obj.Key] = true

				continue
			}

			done[obj.Key] = true
			satisfied = true
			out = append(out, dest)
		}

		if !satisfied {
			log.Warn("No object available for date")
			missing.Add(date)
		}
	}

	return out, nil
}

var errNotCached = errors.New("object not in local cache")

func (s *Source) fetchObject(ctx context.Context, obj Object, dest string) error {
	if sources.LocalSize(dest) == obj.Size {
		s.log.WithField("path", dest).Debug("Object already downloaded")
		return nil
	}

	if s.cfg.CacheOnly {
		return errNotCached
	}

	if err := s.store.Download(ctx, s.cfg.Bucket, obj.Key, dest); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"key":   obj.Key,
		"path":  dest,
		"bytes": obj.Size,
	}).Info("Downloaded object")

	return nil
}

func (s *Source) list(ctx context.Context, prefix string) ([]Object, error) {
	s.listMu.Lock()
	cached, ok := s.listings[prefix]
	s.listMu.Unlock()

	if ok {
		return cached, nil
	}

	objects, err := s.store.List(ctx, s.cfg.Bucket, prefix)
	if err != nil {
		return nil, err
	}

	s.listMu.Lock()
	s.listings[prefix] = objects
	s.listMu.Unlock()

	return objects, nil
}

var _ download.Fetcher = (*Source)(nil)
