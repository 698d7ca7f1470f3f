// Package sources holds the remote acquisition strategies that plug into the
// download orchestrator. Each sub-package implements download.Fetcher for one
// kind of upstream.
package sources

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/geofetch/geofetch/pkg/dataset"
)

var (
	// ErrClient is returned when a remote source rejects or fails a request
	ErrClient = errors.New("client error")
	// ErrBatchSpansYears is returned when a source that works per calendar
	// year is handed a batch crossing a year boundary
	ErrBatchSpansYears = errors.New("batch of dates must not cross a year boundary")
)

// DownloadDir is where raw files for a slot are staged before consolidation
func DownloadDir(slot dataset.Slot) string {
	return filepath.Join(slot.RootPath, "raw")
}

// LocalSize returns the size of path, or -1 when it does not exist
func LocalSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}

	return info.Size()
}

// SpansYears reports whether dates fall in more than one calendar year
func SpansYears(dates []time.Time) bool {
	for _, d := range dates {
		if d.Year() != dates[0].Year() {
			return true
		}
	}

	return false
}
