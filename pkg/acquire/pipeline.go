package acquire

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/consolidate"
	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/download"
)

// Options control one run
type Options struct {
	Download    download.Config
	Consolidate consolidate.Options
}

// Report summarizes a run
type Report struct {
	RunID    string
	Planned  int
	Files    []string
	Missing  []time.Time
	Failures int
	Written  []string
	Merged   []string
	Config   string
}

// Run downloads the requested dates, consolidates each variable's raw files
// into canonical files and persists the catalog configuration once. A
// consolidation error leaves the configuration as it was before the run. Fetch
// failures only show up as missing dates; consolidation errors are returned.
func Run(ctx context.Context, log logrus.FieldLogger, catalog *dataset.Catalog, fetcher download.Fetcher, opts Options) (*Report, error) {
	o, err := download.New(log, catalog, fetcher, opts.Download)
	if err != nil {
		return nil, err
	}

	if err := o.Run(ctx); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:    o.RunID(),
		Planned:  len(o.Plan()),
		Files:    o.FilesDownloaded(),
		Missing:  o.MissingDates(),
		Failures: o.Failures(),
	}

	if opts.Download.DryRun {
		return report, nil
	}

	slots, err := catalog.SlotList()
	if err != nil {
		return nil, err
	}

	copts := opts.Consolidate
	copts.SkipPersist = true

	c := consolidate.New(log, catalog, copts)
	bySlot := o.FilesBySlot()
	consolidated := false

	for _, slot := range slots {
		paths := bySlot[slot.Name]
		if len(paths) == 0 {
			continue
		}

		in := consolidate.Input{Paths: paths}
		if slot.Prefix != slot.Name {
			in.Rename = map[string]string{slot.Prefix: slot.Name}
		}

		res, err := c.Consolidate(in)
		if err != nil {
			return nil, err
		}

		report.Written = append(report.Written, res.Written...)
		report.Merged = append(report.Merged, res.Merged...)
		consolidated = true
	}

	if !consolidated && !catalog.Overwrite() {
		log.WithField("dataset", catalog.Identifier()).Warn("No data consolidated, configuration left untouched")
		return report, nil
	}

	path, err := catalog.Persist()
	if err != nil {
		return nil, err
	}
	report.Config = path

	log.WithFields(logrus.Fields{
		"dataset": catalog.Identifier(),
		"run_id":  report.RunID,
		"files":   len(report.Files),
		"missing": len(report.Missing),
		"written": len(report.Written),
		"merged":  len(report.Merged),
	}).Info("Acquisition finished")

	return report, nil
}
