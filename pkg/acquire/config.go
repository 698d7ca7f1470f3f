// Package acquire wires a data source, the acquisition orchestrator and the
// consolidator into one run against a dataset catalog.
package acquire

import (
	"errors"
	"fmt"
	"strings"

	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/sources/cds"
	"github.com/geofetch/geofetch/pkg/sources/esgf"
	"github.com/geofetch/geofetch/pkg/sources/ftpsrc"
	"github.com/geofetch/geofetch/pkg/sources/httpsrc"
	"github.com/geofetch/geofetch/pkg/sources/objstore"
)

// ErrUnknownSource is returned for a source kind that has no fetcher
var ErrUnknownSource = errors.New("unknown source")

// Kind names a fetch strategy
type Kind string

const (
	// KindHTTP fetches one templated URL per date
	KindHTTP Kind = "http"
	// KindFTP fetches from an OSI-SAF style FTP archive
	KindFTP Kind = "ftp"
	// KindS3 fetches from an S3 compatible bucket
	KindS3 Kind = "s3"
	// KindESGF fetches through the ESGF search federation
	KindESGF Kind = "esgf"
	// KindCDS submits retrieve jobs to the Copernicus Climate Data Store
	KindCDS Kind = "cds"
)

// Kinds lists every supported source kind
func Kinds() []Kind {
	return []Kind{KindHTTP, KindFTP, KindS3, KindESGF, KindCDS}
}

// ParseKind resolves a source name case-insensitively
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// Limits returns the coarsest and finest request batching a source accepts
func (k Kind) Limits() (coarsest, finest frequency.Frequency) {
	switch k {
	case KindS3:
		// listings are made per month prefix
		return frequency.Month, frequency.Day
	case KindCDS:
		return frequency.Year, frequency.Hour
	default:
		return frequency.Year, frequency.Day
	}
}

// SourcesConfig holds the settings for every source kind
type SourcesConfig struct {
	// Variables are used when a download names no variables, keyed by kind
	Variables map[string][]string `yaml:"variables"`

	HTTP httpsrc.Config  `yaml:"http"`
	FTP  ftpsrc.Config   `yaml:"ftp"`
	S3   objstore.Config `yaml:"s3"`
	ESGF esgf.Config     `yaml:"esgf"`
	CDS  cds.Config      `yaml:"cds"`
}

// DefaultVariables returns the configured variables for kind
func (c *SourcesConfig) DefaultVariables(kind Kind) []string {
	return c.Variables[string(kind)]
}
