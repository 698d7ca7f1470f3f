package dataset

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/ncdata"
)

// FilterExtant removes dates already present in the slot's canonical files.
// Dates are compared at the storage frequency. The result is in descending
// order so that the most recent gaps surface first. No file handles remain
// open when it returns.
func (c *Catalog) FilterExtant(s Slot, dates []time.Time) ([]time.Time, error) {
	sorted := slices.Clone(dates)
	slices.SortFunc(sorted, func(a, b time.Time) int {
		return b.Compare(a)
	})

	present := make(map[int64]struct{})

	for _, path := range c.CanonicalPaths(s, sorted) {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to inspect %s: %w", path, err)
		}

		times, err := ncdata.ReadTimes(path)
		if err != nil {
			return nil, err
		}

		for _, t := range times {
			present[c.spec.Frequency.Truncate(t).Unix()] = struct{}{}
		}
	}

	out := make([]time.Time, 0, len(sorted))
	for _, d := range sorted {
		if _, ok := present[c.spec.Frequency.Truncate(d).Unix()]; ok {
			continue
		}
		out = append(out, d)
	}

	if removed := len(sorted) - len(out); removed > 0 {
		c.log.WithFields(logrus.Fields{
			"variable":  s.Name,
			"removed":   removed,
			"remaining": len(out),
		}).Info("Filtered dates already present in output")
	}

	return out, nil
}
