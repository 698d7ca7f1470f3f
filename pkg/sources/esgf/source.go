// Package esgf fetches climate model output through the Earth System Grid
// Federation search API, falling back across data nodes
package esgf

import (
	"context"
	"errors"
	"maps"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/cache"
	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/sources"
	"github.com/geofetch/geofetch/pkg/sources/transport"
)

// ErrSearchNodeRequired is returned when no search endpoint is configured
var ErrSearchNodeRequired = errors.New("esgf source requires a search node")

// Config describes the federation query
type Config struct {
	SearchNode string `yaml:"searchNode" default:"https://esgf-node.llnl.gov/esg-search/search"`
	Project    string `yaml:"project" default:"CMIP6"`
	// FilesType selects the access method advertised for each file
	FilesType string `yaml:"filesType" default:"HTTPServer"`
	LocalNode bool   `yaml:"localNode"`
	// ExcludeNodes drops any data node whose host contains one of these
	ExcludeNodes []string `yaml:"excludeNodes"`
	// Query holds fixed facets such as source_id, member_id and experiment_id
	Query map[string]string `yaml:"query"`
	// TableMap and GridMap give table_id and grid_label per variable
	TableMap  map[string]string `yaml:"tableMap"`
	GridMap   map[string]string `yaml:"gridMap"`
	CacheTTL  time.Duration     `yaml:"cacheTTL" default:"24h"`
	Transport transport.Config  `yaml:"transport"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.SearchNode == "" {
		return ErrSearchNodeRequired
	}

	return nil
}

// Source searches the federation and downloads matching files
type Source struct {
	log    logrus.FieldLogger
	cfg    Config
	client *transport.Client
	cache  cache.Cache
}

// New creates an ESGF source. A nil cache keeps search results in memory.
func New(log logrus.FieldLogger, cfg Config, client *transport.Client, c cache.Cache) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if c == nil {
		c = cache.NewMemoryCache()
	}

	return &Source{
		log:    log.WithField("component", "esgf_source"),
		cfg:    cfg,
		client: client,
		cache:  c,
	}, nil
}

func (s *Source) query(prefix string) map[string]string {
	q := maps.Clone(s.cfg.Query)
	if q == nil {
		q = map[string]string{}
	}

	q["variable_id"] = prefix
	if table, ok := s.cfg.TableMap[prefix]; ok {
		q["table_id"] = table
	}
	if grid, ok := s.cfg.GridMap[prefix]; ok {
		q["grid_label"] = grid
	}

	return q
}

// Fetch implements download.Fetcher. Files overlapping the batch are grouped
// by data node and each node is tried in turn until one serves them all.
func (s *Source) Fetch(ctx context.Context, unit download.WorkUnit, missing *download.MissingDates) ([]string, error) {
	if len(unit.Dates) == 0 {
		return nil, nil
	}

	log := s.log.WithFields(logrus.Fields{
		"variable": unit.Slot.Name,
		"dates":    len(unit.Dates),
	})

	query := s.query(unit.Slot.Prefix)

	results, err := s.Search(ctx, query)
	if err != nil {
		log.WithError(err).Error("Search failed, clearing cached result")

		if err := s.InvalidateSearch(ctx, query); err != nil {
			log.WithError(err).Warn("Failed to clear search cache")
		}

		missing.Add(unit.Dates...)

		return nil, nil
	}

	start, end := unit.Dates[0], unit.Dates[len(unit.Dates)-1]

	var matching []string
	for _, u := range results {
		if fileStart, fileEnd, ok := fileRange(u); ok && overlaps(fileStart, fileEnd, start, end) {
			matching = append(matching, u)
		}
	}

	if len(matching) == 0 {
		log.Warn("No search results overlap the requested dates")
		missing.Add(unit.Dates...)

		return nil, nil
	}

	hosts, grouped := s.groupByHost(matching)
	if len(hosts) == 0 {
		log.Warn("Every result is served by an excluded node")
		missing.Add(unit.Dates...)

		return nil, nil
	}

	for _, host := range hosts {
		log.WithField("host", host).Info("Attempting download from data node")

		paths, err := s.fetchAll(ctx, unit, grouped[host])
		if err == nil {
			return paths, nil
		}

		log.WithError(err).WithField("host", host).Error("Data node failed")

		if ctx.Err() != nil {
			break
		}
	}

	log.Error("No data node could provide the requested files")
	missing.Add(unit.Dates...)

	return nil, nil
}

func (s *Source) groupByHost(urls []string) ([]string, map[string][]string) {
	var hosts []string
	grouped := make(map[string][]string)

	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}

		host := u.Hostname()
		if s.excluded(host) {
			s.log.WithField("host", host).Debug("Skipping excluded node")
			continue
		}

		if _, ok := grouped[host]; !ok {
			hosts = append(hosts, host)
		}
		grouped[host] = append(grouped[host], raw)
	}

	return hosts, grouped
}

func (s *Source) excluded(host string) bool {
	for _, x := range s.cfg.ExcludeNodes {
		if x != "" && strings.Contains(host, x) {
			return true
		}
	}

	return false
}

// fetchAll downloads every url or none: files fetched before a failure are
// removed again
func (s *Source) fetchAll(ctx context.Context, unit download.WorkUnit, urls []string) ([]string, error) {
	var (
		out   []string
		fresh []string
	)

	for _, u := range urls {
		dest := filepath.Join(sources.DownloadDir(unit.Slot), path.Base(u))

		if sources.LocalSize(dest) >= 0 {
			out = append(out, dest)
			continue
		}

		if _, err := s.client.Download(ctx, u, dest); err != nil {
			for _, f := range fresh {
				_ = os.Remove(f)
			}

			return nil, err
		}

		fresh = append(fresh, dest)
		out = append(out, dest)
	}

	return out, nil
}
