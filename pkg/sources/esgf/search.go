package esgf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/observability"
)

const (
	searchPageSize = 1000
	sourceName     = "esgf"
)

type searchResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			URL []string `json:"url"`
		} `json:"docs"`
	} `json:"response"`
}

// Search queries the federated index for file URLs of the configured access
// type. Results are sorted and cached.
func (s *Source) Search(ctx context.Context, query map[string]string) ([]string, error) {
	params := s.searchParams(query)
	key := cacheKey(s.cfg.SearchNode, params)

	var cached []string
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.log.WithError(err).Warn("Failed to read search cache")
	} else if hit {
		s.log.WithField("results", len(cached)).Debug("Search served from cache")
		observability.RecordSourceCacheHit(sourceName)

		return cached, nil
	}

	observability.RecordSourceCacheMiss(sourceName)

	var files []string

	for offset, found := 0, 1; offset < found; {
		params.Set("offset", strconv.Itoa(offset))
		endpoint := s.cfg.SearchNode + "?" + params.Encode()

		s.log.WithField("url", endpoint).Debug("Querying search node")

		var resp searchResponse
		if err := s.client.GetJSON(ctx, endpoint, &resp); err != nil {
			return nil, fmt.Errorf("search %s: %w", s.cfg.SearchNode, err)
		}

		found = resp.Response.NumFound
		if len(resp.Response.Docs) == 0 {
			break
		}
		offset += len(resp.Response.Docs)

		for _, doc := range resp.Response.Docs {
			for _, entry := range doc.URL {
				parts := strings.Split(entry, "|")
				if !strings.EqualFold(parts[len(parts)-1], s.cfg.FilesType) {
					continue
				}

				u, _, _ := strings.Cut(parts[0], ".html")
				files = append(files, u)
			}
		}
	}

	slices.Sort(files)
	files = slices.Compact(files)

	if err := s.cache.Set(ctx, key, files, s.cfg.CacheTTL); err != nil {
		s.log.WithError(err).Warn("Failed to write search cache")
	}

	s.log.WithFields(logrus.Fields{
		"results": len(files),
		"query":   query,
	}).Debug("Search complete")

	return files, nil
}

// InvalidateSearch drops a cached search, used after a failed query
func (s *Source) InvalidateSearch(ctx context.Context, query map[string]string) error {
	return s.cache.Invalidate(ctx, cacheKey(s.cfg.SearchNode, s.searchParams(query)))
}

func (s *Source) searchParams(query map[string]string) url.Values {
	params := url.Values{}
	for k, v := range query {
		params.Set(k, v)
	}

	params.Set("project", s.cfg.Project)
	params.Set("type", "File")
	params.Set("latest", "true")
	params.Set("format", "application/solr+json")
	params.Set("limit", strconv.Itoa(searchPageSize))

	if s.cfg.LocalNode {
		params.Set("distrib", "false")
	}

	return params
}

func cacheKey(node string, params url.Values) string {
	p := url.Values{}
	for k, v := range params {
		if k != "offset" {
			p[k] = v
		}
	}

	sum := sha256.Sum256([]byte(node + "?" + p.Encode()))

	return "esgf:search:" + hex.EncodeToString(sum[:12])
}
