// Package consolidate folds freshly fetched data into a catalog's canonical
// per-period files without losing or duplicating timestamps.
package consolidate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/ncdata"
	"github.com/geofetch/geofetch/pkg/observability"
)

// Input describes the data to consolidate. Paths and Dataset are mutually
// exclusive.
type Input struct {
	// Paths are files produced by a fetcher
	Paths []string
	// Dataset is data already held in memory
	Dataset *ncdata.Dataset
	// Rename maps source variable names to slot names
	Rename map[string]string
	// Drop lists variables to discard before anything else
	Drop []string
	// Time stamps data that carries no time axis of its own
	Time *time.Time
}

func (in Input) empty() bool {
	return len(in.Paths) == 0 && in.Dataset == nil
}

// Options control merge behaviour
type Options struct {
	Policy MergePolicy
	// DeleteSources removes Input.Paths once consolidation succeeds
	DeleteSources bool
	// SkipPersist leaves saving the configuration to the caller, for runs
	// that consolidate several inputs before recording the run once
	SkipPersist bool
}

// Result lists the canonical files touched by a consolidation
type Result struct {
	Written []string
	Merged  []string
	Skipped []string
	Config  string
}

// Consolidator writes data into a catalog's canonical layout
type Consolidator struct {
	log     logrus.FieldLogger
	catalog *dataset.Catalog
	opts    Options
}

// New creates a Consolidator for catalog
func New(log logrus.FieldLogger, catalog *dataset.Catalog, opts Options) *Consolidator {
	if opts.Policy == "" {
		opts.Policy = PreferExisting
	}

	return &Consolidator{
		log: log.WithFields(logrus.Fields{
			"component": "consolidator",
			"dataset":   catalog.Identifier(),
		}),
		catalog: catalog,
		opts:    opts,
	}
}

// Consolidate resamples the input to the catalog's storage frequency, splits
// it into output periods and writes or merges each period's canonical file.
// The catalog configuration is persisted once at the end unless
// Options.SkipPersist is set.
func (c *Consolidator) Consolidate(in Input) (*Result, error) {
	if len(in.Paths) > 0 && in.Dataset != nil {
		return nil, ErrConflictingInput
	}

	res := &Result{}

	if in.empty() {
		if c.opts.SkipPersist {
			return res, nil
		}

		if !c.catalog.Overwrite() {
			c.log.Warn("No data supplied, configuration left untouched")
			return res, nil
		}

		path, err := c.catalog.Persist()
		if err != nil {
			return nil, err
		}
		res.Config = path

		return res, nil
	}

	ds, err := c.load(in)
	if err != nil {
		return nil, err
	}

	if len(in.Drop) > 0 {
		ds.Drop(in.Drop...)
	}

	if len(in.Rename) > 0 {
		ds.Rename(in.Rename)
	}

	resampled := ds.Resample(c.catalog.Frequency())

	slots, err := c.catalog.SlotList()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]dataset.Slot, len(slots))
	for _, s := range slots {
		byName[s.Name] = s
	}

	for _, name := range resampled.VariableNames() {
		slot, ok := byName[name]
		if !ok {
			c.log.WithField("variable", name).Warn("Variable does not match any configured slot, skipping")
			res.Skipped = append(res.Skipped, name)
			continue
		}

		for _, g := range resampled.Only(name).GroupBy(c.catalog.OutputGroupBy()) {
			path := c.catalog.PeriodPath(slot, g.Period)

			merged, err := c.store(path, g.Dataset)
			if err != nil {
				return nil, err
			}

			if merged {
				res.Merged = append(res.Merged, path)
			} else {
				res.Written = append(res.Written, path)
			}

			c.catalog.RecordProduced(slot.Name, path)
		}
	}

	if c.opts.DeleteSources {
		c.deleteSources(in.Paths)
	}

	if !c.opts.SkipPersist {
		path, err := c.catalog.Persist()
		if err != nil {
			return nil, err
		}
		res.Config = path
	}

	c.log.WithFields(logrus.Fields{
		"written": len(res.Written),
		"merged":  len(res.Merged),
		"skipped": len(res.Skipped),
	}).Info("Consolidation complete")

	return res, nil
}

func (c *Consolidator) load(in Input) (*ncdata.Dataset, error) {
	if in.Dataset != nil {
		ds := in.Dataset.Clone()

		if in.Time != nil {
			stamps := make([]time.Time, ds.Len())
			for i := range stamps {
				stamps[i] = *in.Time
			}

			if err := ds.StampTime(stamps...); err != nil {
				return nil, fmt.Errorf("%w: %w", ncdata.ErrDataSet, err)
			}
		}

		return ds, nil
	}

	var opts []ncdata.OpenOption
	if in.Time != nil {
		opts = append(opts, ncdata.WithTime(*in.Time))
	}

	return ncdata.OpenAll(in.Paths, opts...)
}

// store writes ds to path, merging with an existing file. It reports whether
// a merge took place.
func (c *Consolidator) store(path string, ds *ncdata.Dataset) (bool, error) {
	log := c.log.WithField("path", path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := ncdata.Write(path, ds); err != nil {
			return false, err
		}

		log.WithField("steps", ds.Len()).Debug("Wrote canonical file")
		observability.RecordConsolidation(c.catalog.Identifier(), "write")

		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	if err := c.merge(path, ds); err != nil {
		return false, err
	}

	observability.RecordConsolidation(c.catalog.Identifier(), "merge")

	return true, nil
}

// merge writes incoming to a temporary sibling, combines it with the file at
// path according to the merge policy, and replaces path with the result
func (c *Consolidator) merge(path string, incoming *ncdata.Dataset) error {
	incomingPath, err := tempSibling(path, "incoming")
	if err != nil {
		return err
	}
	defer os.Remove(incomingPath) //nolint:errcheck // best effort

	if err := ncdata.Write(incomingPath, incoming); err != nil {
		return err
	}

	existing, err := ncdata.Open(path)
	if err != nil {
		return err
	}

	fresh, err := ncdata.Open(incomingPath)
	if err != nil {
		return err
	}

	first, second := existing, fresh
	if c.opts.Policy == PreferIncoming {
		first, second = fresh, existing
	}

	combined, err := ncdata.Concat(first, second)
	if err != nil {
		return fmt.Errorf("%w: cannot merge into %s: %w", ncdata.ErrDataSet, path, err)
	}

	combined.SortByTime()
	dropped := combined.DropDuplicateTimes()

	mergedPath, err := tempSibling(path, "merged")
	if err != nil {
		return err
	}
	defer os.Remove(mergedPath) //nolint:errcheck // absent after a successful rename

	if err := ncdata.Write(mergedPath, combined); err != nil {
		return err
	}

	if err := os.Rename(mergedPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	c.log.WithFields(logrus.Fields{
		"path":       path,
		"steps":      combined.Len(),
		"duplicates": dropped,
		"policy":     c.opts.Policy,
	}).Info("Merged into canonical file")

	return nil
}

func tempSibling(path, label string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), fmt.Sprintf(".%s.%s-*.nc", filepath.Base(path), label))
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file next to %s: %w", path, err)
	}

	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	return name, nil
}

func (c *Consolidator) deleteSources(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.WithError(err).WithField("path", p).Warn("Failed to delete source file")
		}
	}
}
