// Package ftpsrc fetches dated files from an FTP archive laid out in
// per-period directories, in the manner of the OSI-SAF sea ice record
package ftpsrc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/location"
	"github.com/geofetch/geofetch/pkg/rendering"
	"github.com/geofetch/geofetch/pkg/sources"
)

var (
	// ErrHostRequired is returned when no FTP host is configured
	ErrHostRequired = errors.New("ftp source requires a host")
	// ErrTemplateRequired is returned when directory or file templates are missing
	ErrTemplateRequired = errors.New("ftp source requires directory and file templates")
)

// Config describes an FTP archive
type Config struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port" default:"21"`
	Username string        `yaml:"username" default:"anonymous"`
	Password string        `yaml:"password" default:"anonymous@"`
	Timeout  time.Duration `yaml:"timeout" default:"60s"`
	// DirTemplate renders the remote directory holding a date's file
	DirTemplate string `yaml:"dirTemplate"`
	// FileTemplate renders the remote file name for a date
	FileTemplate string `yaml:"fileTemplate"`
	// InvalidDates are YYYY-MM-DD days known to be unusable upstream
	InvalidDates []string `yaml:"invalidDates"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrHostRequired
	}

	if c.DirTemplate == "" || c.FileTemplate == "" {
		return ErrTemplateRequired
	}

	engine := rendering.NewTemplateEngine()
	for _, tmpl := range []string{c.DirTemplate, c.FileTemplate} {
		if err := engine.Check(tmpl); err != nil {
			return err
		}
	}

	for _, d := range c.InvalidDates {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("invalid date %q: %w", d, err)
		}
	}

	return nil
}

// Source downloads dated files over FTP
type Source struct {
	log        logrus.FieldLogger
	cfg        Config
	identifier string
	region     location.Region
	templates  *rendering.TemplateEngine
	pool       *pool
	invalid    map[string]struct{}

	listMu   sync.Mutex
	listings map[string][]string
}

// New creates an FTP source. workers sizes the idle connection pool.
func New(log logrus.FieldLogger, cfg Config, identifier string, region location.Region, dial Dialer, workers int) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if dial == nil {
		dial = NewDialer(cfg)
	}

	invalid := make(map[string]struct{}, len(cfg.InvalidDates))
	for _, d := range cfg.InvalidDates {
		invalid[d] = struct{}{}
	}

	log = log.WithFields(logrus.Fields{
		"component": "ftp_source",
		"host":      cfg.Host,
	})

	return &Source{
		log:        log,
		cfg:        cfg,
		identifier: identifier,
		region:     region,
		templates:  rendering.NewTemplateEngine(),
		pool:       newPool(log, dial, workers),
		invalid:    invalid,
		listings:   make(map[string][]string),
	}, nil
}

// Close releases pooled sessions
func (s *Source) Close() {
	s.pool.close()
}

// Fetch implements download.Fetcher. A batch crossing a year boundary is
// rejected outright.
func (s *Source) Fetch(ctx context.Context, unit download.WorkUnit, missing *download.MissingDates) ([]string, error) {
	if len(unit.Dates) == 0 {
		return nil, nil
	}

	if sources.SpansYears(unit.Dates) {
		return nil, fmt.Errorf("%w: %s", sources.ErrBatchSpansYears, unit)
	}

	conn, err := s.pool.get(ctx)
	if err != nil {
		out := s.abandon(unit, unit.Dates, missing)
		return out, fmt.Errorf("%w: %w", sources.ErrClient, err)
	}

	healthy := true
	defer func() {
		if healthy {
			s.pool.put(conn)
		} else {
			s.pool.discard(conn)
		}
	}()

	var out []string

	for i, date := range unit.Dates {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		log := s.log.WithFields(logrus.Fields{
			"variable": unit.Slot.Name,
			"date":     date.Format(time.DateOnly),
		})

		if s.isInvalid(date) {
			log.Debug("Skipping known invalid date")
			continue
		}

		dir, name, dest, err := s.target(unit, date)
		if err != nil {
			return out, err
		}

		if sources.LocalSize(dest) >= 0 {
			log.WithField("path", dest).Debug("File already downloaded")
			out = append(out, dest)

			continue
		}

		listing, err := s.list(conn, dir)
		if err != nil {
			log.WithError(err).WithField("dir", dir).Warn("Failed to list remote directory")
			healthy = false

			return append(out, s.abandon(unit, unit.Dates[i:], missing)...), nil
		}

		if !slices.Contains(listing, name) {
			log.WithField("file", name).Warn("File not available on server")
			missing.Add(date)

			continue
		}

		if err := s.retrieve(conn, path.Join(dir, name), dest); err != nil {
			log.WithError(err).WithField("file", name).Warn("Failed to download file, abandoning batch")
			healthy = false

			return append(out, s.abandon(unit, unit.Dates[i:], missing)...), nil
		}

		log.WithField("path", dest).Info("Downloaded file")
		out = append(out, dest)
	}

	return out, nil
}

func (s *Source) isInvalid(date time.Time) bool {
	_, bad := s.invalid[date.Format(time.DateOnly)]
	return bad
}

// target renders the remote directory, file name and local destination for
// one date
func (s *Source) target(unit download.WorkUnit, date time.Time) (dir, name, dest string, err error) {
	vars := s.templates.BuildVariables(s.identifier, s.region, unit.Slot, date)

	if dir, err = s.templates.Render(s.cfg.DirTemplate, vars); err != nil {
		return "", "", "", fmt.Errorf("render directory: %w", err)
	}

	if name, err = s.templates.Render(s.cfg.FileTemplate, vars); err != nil {
		return "", "", "", fmt.Errorf("render file name: %w", err)
	}

	return dir, name, filepath.Join(sources.DownloadDir(unit.Slot), name), nil
}

// abandon settles the dates a failed session could not reach: invalid days
// are skipped, files already on disk are returned and the rest are missing
func (s *Source) abandon(unit download.WorkUnit, dates []time.Time, missing *download.MissingDates) []string {
	var out []string

	for _, date := range dates {
		if s.isInvalid(date) {
			continue
		}

		if _, _, dest, err := s.target(unit, date); err == nil && sources.LocalSize(dest) >= 0 {
			out = append(out, dest)
			continue
		}

		missing.Add(date)
	}

	return out
}

// list returns the base names in dir, cached per directory for the lifetime
// of the source
func (s *Source) list(conn Conn, dir string) ([]string, error) {
	s.listMu.Lock()
	cached, ok := s.listings[dir]
	s.listMu.Unlock()

	if ok {
		return cached, nil
	}

	entries, err := conn.NameList(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", sources.ErrClient, dir, err)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = path.Base(e)
	}

	s.listMu.Lock()
	s.listings[dir] = names
	s.listMu.Unlock()

	return names, nil
}

func (s *Source) retrieve(conn Conn, remote, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", dest, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // absent after a successful rename

	if err := conn.Retrieve(remote, tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: retrieve %s: %w", sources.ErrClient, remote, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}

	return os.Rename(tmp.Name(), dest)
}

var _ download.Fetcher = (*Source)(nil)
