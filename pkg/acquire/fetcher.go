package acquire

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/cache"
	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/sources/cds"
	"github.com/geofetch/geofetch/pkg/sources/esgf"
	"github.com/geofetch/geofetch/pkg/sources/ftpsrc"
	"github.com/geofetch/geofetch/pkg/sources/httpsrc"
	"github.com/geofetch/geofetch/pkg/sources/objstore"
	"github.com/geofetch/geofetch/pkg/sources/transport"
)

// Deps are optional collaborators for NewFetcher. Nil fields are replaced
// with production implementations.
type Deps struct {
	Cache      cache.Cache
	HTTPClient *http.Client
	FTPDialer  ftpsrc.Dialer
	Store      objstore.Store
}

// Fetcher is a download.Fetcher that may hold connections
type Fetcher struct {
	download.Fetcher
	closer func()
}

// Close releases any pooled connections
func (f *Fetcher) Close() {
	if f.closer != nil {
		f.closer()
	}
}

// NewFetcher builds the fetch strategy for kind against catalog. workers
// sizes connection pools.
func NewFetcher(log logrus.FieldLogger, kind Kind, cfg *SourcesConfig, catalog *dataset.Catalog, workers int, deps Deps) (*Fetcher, error) {
	identifier := catalog.Identifier()
	region := catalog.Location()

	switch kind {
	case KindHTTP:
		client := transport.New(log, cfg.HTTP.Transport, deps.HTTPClient)

		src, err := httpsrc.New(log, cfg.HTTP, identifier, region, client)
		if err != nil {
			return nil, err
		}

		return &Fetcher{Fetcher: src}, nil
	case KindFTP:
		src, err := ftpsrc.New(log, cfg.FTP, identifier, region, deps.FTPDialer, workers)
		if err != nil {
			return nil, err
		}

		return &Fetcher{Fetcher: src, closer: src.Close}, nil
	case KindS3:
		if err := cfg.S3.Validate(); err != nil {
			return nil, err
		}

		store := deps.Store
		if store == nil {
			var err error
			if store, err = objstore.NewStore(cfg.S3); err != nil {
				return nil, err
			}
		}

		src, err := objstore.New(log, cfg.S3, identifier, region, store)
		if err != nil {
			return nil, err
		}

		return &Fetcher{Fetcher: src}, nil
	case KindESGF:
		client := transport.New(log, cfg.ESGF.Transport, deps.HTTPClient)

		src, err := esgf.New(log, cfg.ESGF, client, deps.Cache)
		if err != nil {
			return nil, err
		}

		return &Fetcher{Fetcher: src}, nil
	case KindCDS:
		client := transport.New(log, cfg.CDS.TransportConfig(), deps.HTTPClient)

		src, err := cds.New(log, cfg.CDS, region, catalog.Frequency(), client)
		if err != nil {
			return nil, err
		}

		slots, err := catalog.SlotList()
		if err != nil {
			return nil, err
		}

		prefixes := make([]string, 0, len(slots))
		for _, slot := range slots {
			prefixes = append(prefixes, slot.Prefix)
		}

		if err := src.CheckVariables(prefixes...); err != nil {
			return nil, err
		}

		return &Fetcher{Fetcher: src}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}
}
