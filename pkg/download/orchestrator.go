// Package download drives acquisition runs: it turns a catalog and a set of
// date ranges into batched work units, removes work already satisfied on
// disk, and dispatches the rest to a fetcher through a bounded pool.
package download

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/observability"
	"github.com/geofetch/geofetch/pkg/planner"
)

// Orchestrator runs a single acquisition. It is single use.
type Orchestrator struct {
	log      logrus.FieldLogger
	catalog  *dataset.Catalog
	fetcher  Fetcher
	cfg      Config
	runID    string
	dates    []time.Time
	reqFreq  frequency.Frequency
	state    atomic.Int32
	missing  *MissingDates
	mu       sync.Mutex
	plan     []WorkUnit
	files    map[string]struct{}
	bySlot   map[string][]string
	failures int
}

// New validates cfg and prepares a run against catalog
func New(log logrus.FieldLogger, catalog *dataset.Catalog, fetcher Fetcher, cfg Config) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, ErrNoFetcher
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	reqFreq := cfg.EffectiveRequestFrequency()

	o := &Orchestrator{
		log: log.WithFields(logrus.Fields{
			"component": "orchestrator",
			"dataset":   catalog.Identifier(),
			"run_id":    runID,
		}),
		catalog: catalog,
		fetcher: fetcher,
		cfg:     cfg,
		runID:   runID,
		dates:   expandRanges(catalog.Frequency(), cfg.Ranges),
		reqFreq: reqFreq,
		missing: &MissingDates{},
		files:   make(map[string]struct{}),
		bySlot:  make(map[string][]string),
	}

	if reqFreq != cfg.RequestFrequency {
		o.log.WithFields(logrus.Fields{
			"requested": cfg.RequestFrequency.Name(),
			"effective": reqFreq.Name(),
		}).Info("Request frequency clamped to source limits")
	}

	return o, nil
}

func expandRanges(freq frequency.Frequency, ranges []DateRange) []time.Time {
	seen := make(map[int64]struct{})

	var out []time.Time
	for _, r := range ranges {
		for _, d := range freq.Range(r.Start, r.End) {
			if _, ok := seen[d.Unix()]; ok {
				continue
			}
			seen[d.Unix()] = struct{}{}
			out = append(out, d)
		}
	}

	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })

	return out
}

// RunID identifies this run in logs
func (o *Orchestrator) RunID() string { return o.runID }

// Dates is the full requested date list at the catalog's storage frequency
func (o *Orchestrator) Dates() []time.Time { return slices.Clone(o.dates) }

// RequestFrequency is the clamped batching granularity
func (o *Orchestrator) RequestFrequency() frequency.Frequency { return o.reqFreq }

// State reports the run's lifecycle position
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Plan returns the work units built by Run
func (o *Orchestrator) Plan() []WorkUnit {
	o.mu.Lock()
	defer o.mu.Unlock()

	return slices.Clone(o.plan)
}

// FilesDownloaded is the deduplicated, sorted set of produced paths
func (o *Orchestrator) FilesDownloaded() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]string, 0, len(o.files))
	for f := range o.files {
		out = append(out, f)
	}
	slices.Sort(out)

	return out
}

// FilesBySlot groups produced paths by the composite variable name of the
// unit that fetched them. Each list is sorted and deduplicated.
func (o *Orchestrator) FilesBySlot() map[string][]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string][]string, len(o.bySlot))
	for name, paths := range o.bySlot {
		sorted := slices.Clone(paths)
		slices.Sort(sorted)
		out[name] = slices.Compact(sorted)
	}

	return out
}

// MissingDates returns the dates fetch units reported as unavailable
func (o *Orchestrator) MissingDates() []time.Time {
	return o.missing.Dates()
}

// Failures is the number of units that returned an error or panicked
func (o *Orchestrator) Failures() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.failures
}

// Run plans and dispatches the acquisition. Unit failures are logged and
// isolated; only planning errors are returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateNew), int32(StatePlanning)) {
		return ErrRunAlreadyStarted
	}
	defer o.state.Store(int32(StateDone))

	units, err := o.buildPlan()
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.plan = units
	o.mu.Unlock()

	if o.cfg.DryRun {
		o.log.WithField("units", len(units)).Info("Dry run, not dispatching")
		return nil
	}

	if len(units) == 0 {
		o.log.Info("Nothing to fetch")
		return nil
	}

	o.dispatch(ctx, units)

	files := o.FilesDownloaded()
	observability.RecordRunTotals(o.catalog.Identifier(), len(files), o.missing.Len())

	o.log.WithFields(logrus.Fields{
		"files":    len(files),
		"missing":  o.missing.Len(),
		"failures": o.Failures(),
	}).Info("Acquisition run complete")

	return nil
}

func (o *Orchestrator) buildPlan() ([]WorkUnit, error) {
	var units []WorkUnit

	attr := o.reqFreq.Attribute()

	for slot, err := range o.catalog.Slots() {
		if err != nil {
			return nil, fmt.Errorf("failed to prepare variable directories: %w", err)
		}

		remaining, err := o.pending(slot)
		if err != nil {
			return nil, err
		}

		for _, batch := range planner.Batch(remaining, attr) {
			o.log.WithFields(logrus.Fields{
				"variable": slot.Name,
				"dates":    len(batch),
			}).Debug("Planned work unit")

			units = append(units, WorkUnit{Slot: slot, Dates: batch})
		}
	}

	return units, nil
}

// pending returns the dates to request for slot, newest first
func (o *Orchestrator) pending(slot dataset.Slot) ([]time.Time, error) {
	if o.cfg.Refetch {
		dates := slices.Clone(o.dates)
		slices.SortFunc(dates, func(a, b time.Time) int { return b.Compare(a) })

		return dates, nil
	}

	remaining, err := o.catalog.FilterExtant(slot, o.dates)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing output for %s: %w", slot.Name, err)
	}

	observability.RecordExtantFiltered(o.catalog.Identifier(), len(o.dates)-len(remaining))

	return remaining, nil
}

type unitResult struct {
	unit  WorkUnit
	paths []string
	err   error
}

func (o *Orchestrator) dispatch(ctx context.Context, units []WorkUnit) {
	workers := min(o.cfg.Workers, len(units))

	o.log.WithFields(logrus.Fields{
		"workers": workers,
		"units":   len(units),
	}).Info("Dispatching work units")

	o.state.Store(int32(StateDispatching))

	results := make(chan unitResult)

	g := new(errgroup.Group)
	g.SetLimit(workers)

	go func() {
		for _, u := range units {
			g.Go(func() error {
				results <- o.runUnit(ctx, u)
				return nil
			})
		}

		o.state.CompareAndSwap(int32(StateDispatching), int32(StateCollecting))

		_ = g.Wait()
		close(results)
	}()

	for r := range results {
		o.collect(r)
	}
}

func (o *Orchestrator) runUnit(ctx context.Context, u WorkUnit) (res unitResult) {
	name := o.catalog.Identifier()
	start := time.Now()

	observability.RecordUnitStart(name)

	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("stack", string(debug.Stack())).Debug("Recovered fetch unit panic")
			res = unitResult{unit: u, err: fmt.Errorf("%w: %v", ErrUnitPanicked, r)}
		}

		status := observability.UnitSuccess
		switch {
		case res.err != nil:
			status = observability.UnitFailed
		case len(res.paths) == 0:
			status = observability.UnitEmpty
		}

		observability.RecordUnitComplete(name, status, time.Since(start).Seconds())
	}()

	paths, err := o.fetcher.Fetch(ctx, u, o.missing)

	return unitResult{unit: u, paths: paths, err: err}
}

func (o *Orchestrator) collect(r unitResult) {
	log := o.log.WithFields(logrus.Fields{
		"variable": r.unit.Slot.Name,
		"unit":     r.unit.String(),
	})

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case r.err != nil:
		o.failures++
		log.WithError(r.err).Error("Fetch unit failed")
		observability.RecordError("orchestrator", "unit_failed")
	case len(r.paths) == 0:
		log.Warn("Nothing downloaded for batch")
	default:
		for _, p := range r.paths {
			o.files[p] = struct{}{}
		}
		o.bySlot[r.unit.Slot.Name] = append(o.bySlot[r.unit.Slot.Name], r.paths...)
		log.WithField("files", len(r.paths)).Info("Batch downloaded")
	}
}
