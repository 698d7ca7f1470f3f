// Package dataset describes logical datasets: their region, temporal
// resolution, variables and canonical on-disk layout, along with the
// persisted configuration document that records what has been produced.
package dataset

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/location"
)

const (
	// DefaultConfigType prefixes persisted configuration file names
	DefaultConfigType = "dataset_config"
	// DefaultImplementation is the registry name of the plain catalog
	DefaultImplementation = "geofetch.dataset"
	// FileExtension is appended to every canonical file
	FileExtension = ".nc"
)

//nolint:gochecknoglobals // validator caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

// Spec is everything needed to construct a Catalog. It is also the data
// section of the persisted configuration document.
type Spec struct {
	Identifier       string                `json:"identifier" validate:"required"`
	BasePath         string                `json:"base_path" validate:"required"`
	ConfigType       string                `json:"config_type,omitempty"`
	Location         location.Region       `json:"location"`
	Frequency        frequency.Frequency   `json:"frequency"`
	OutputGroupBy    frequency.Frequency   `json:"output_group_by"`
	ValidFrequencies []frequency.Frequency `json:"valid_frequencies,omitempty"`
	VarNames         []string              `json:"var_names" validate:"min=1,dive,required"`
	Levels           []LevelSet            `json:"levels"`

	// Implementation is the registry name recorded in the persisted document
	Implementation string `json:"-"`
	// Overwrite replaces a stored description that differs from this one
	Overwrite bool `json:"-"`
}

func (s *Spec) applyDefaults() {
	if s.ConfigType == "" {
		s.ConfigType = DefaultConfigType
	}

	if s.Implementation == "" {
		s.Implementation = DefaultImplementation
	}

	if s.Frequency == 0 {
		s.Frequency = frequency.Day
	}

	if s.OutputGroupBy == 0 {
		s.OutputGroupBy = frequency.Year
	}

	if len(s.ValidFrequencies) == 0 {
		s.ValidFrequencies = frequency.All()
	}

	if len(s.Levels) == 0 {
		s.Levels = make([]LevelSet, len(s.VarNames))
		for i := range s.Levels {
			s.Levels[i] = LevelSet{}
		}
	}
}

// Validate checks the catalog invariants
func (s *Spec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if s.Location.IsZero() {
		return fmt.Errorf("%w: a location is required", ErrConfig)
	}

	if len(s.Levels) != len(s.VarNames) {
		return fmt.Errorf("%w: %d level sets for %d variables", ErrConfig, len(s.Levels), len(s.VarNames))
	}

	if !s.Frequency.Valid() || !s.OutputGroupBy.Valid() {
		return fmt.Errorf("%w: invalid frequency %s or output grouping %s", ErrConfig, s.Frequency, s.OutputGroupBy)
	}

	if !slices.Contains(s.ValidFrequencies, s.Frequency) {
		return fmt.Errorf("%w: frequency %s is not one of %v", ErrConfig, s.Frequency, s.ValidFrequencies)
	}

	if s.OutputGroupBy.FinerThan(s.Frequency) {
		return fmt.Errorf("%w: output grouping %s is finer than frequency %s", ErrConfig, s.OutputGroupBy, s.Frequency)
	}

	return nil
}

// sameLayout reports whether two specs describe the same stored data
func sameLayout(a, b Spec) bool {
	return a.Location == b.Location &&
		a.Frequency == b.Frequency &&
		a.OutputGroupBy == b.OutputGroupBy &&
		slices.Equal(a.VarNames, b.VarNames) &&
		slices.EqualFunc(a.Levels, b.Levels, func(x, y LevelSet) bool { return slices.Equal(x, y) })
}

// Catalog is a logical dataset and the inventory of files produced for it.
// It is owned by a single goroutine; concurrent fetch units must only return
// paths, which are recorded after they have all completed.
type Catalog struct {
	log     logrus.FieldLogger
	spec    Spec
	files   map[string][]string
	history []string
	argv    []string
	now     func() time.Time
}

// New validates spec and builds a Catalog. When a configuration document
// already exists its history and inventory are carried forward.
func New(log logrus.FieldLogger, spec Spec) (*Catalog, error) {
	spec.applyDefaults()

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	c := &Catalog{
		log: log.WithFields(logrus.Fields{
			"component": "catalog",
			"dataset":   spec.Identifier,
		}),
		spec:  spec,
		files: make(map[string][]string),
		argv:  os.Args,
		now:   time.Now,
	}

	existing, err := ReadDocument(c.ConfigPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return c, nil
	case err != nil:
		return nil, err
	}

	if !spec.Overwrite && !sameLayout(existing.Data.Spec, spec) {
		return nil, fmt.Errorf("%w: %s already describes a different layout, overwrite it to continue", ErrConfig, c.ConfigPath())
	}

	c.log.WithField("path", c.ConfigPath()).Info("Loading existing dataset configuration")

	c.history = append(c.history, existing.History...)
	for name, paths := range existing.Data.Files {
		c.RecordProduced(name, paths...)
	}

	return c, nil
}

// Spec returns a copy of the catalog's construction parameters
func (c *Catalog) Spec() Spec {
	s := c.spec
	s.VarNames = slices.Clone(c.spec.VarNames)
	s.Levels = slices.Clone(c.spec.Levels)
	s.ValidFrequencies = slices.Clone(c.spec.ValidFrequencies)

	return s
}

// Identifier is the dataset label
func (c *Catalog) Identifier() string { return c.spec.Identifier }

// Location is the spatial extent
func (c *Catalog) Location() location.Region { return c.spec.Location }

// Frequency is the storage frequency
func (c *Catalog) Frequency() frequency.Frequency { return c.spec.Frequency }

// OutputGroupBy is the period covered by one canonical file
func (c *Catalog) OutputGroupBy() frequency.Frequency { return c.spec.OutputGroupBy }

// Overwrite reports whether the catalog was built to replace a stored description
func (c *Catalog) Overwrite() bool { return c.spec.Overwrite }

// RootPath is <base>/<identifier>
func (c *Catalog) RootPath() string {
	return filepath.Join(c.spec.BasePath, c.spec.Identifier)
}

// ConfigPath is where the configuration document is persisted
func (c *Catalog) ConfigPath() string {
	return filepath.Join(c.RootPath(), fmt.Sprintf("%s.%s.json", c.spec.ConfigType, c.spec.Identifier))
}

// History returns the run annotations carried by the catalog
func (c *Catalog) History() []string {
	return slices.Clone(c.history)
}

func (c *Catalog) slot(prefix string, level *int) Slot {
	name := CompositeName(prefix, level)
	region := c.spec.Location.Name()

	return Slot{
		Prefix:   prefix,
		Level:    level,
		Name:     name,
		Path:     filepath.Join(c.RootPath(), strings.ToLower(c.spec.Frequency.Name()), region, name),
		RootPath: filepath.Join(c.RootPath(), region, name),
	}
}

// Slots yields one Slot per (variable, level) pair, variables outermost, in
// declaration order. Each slot's directories are created before it is
// yielded; existing entries, including symlinks, are left alone.
func (c *Catalog) Slots() iter.Seq2[Slot, error] {
	return func(yield func(Slot, error) bool) {
		for i, prefix := range c.spec.VarNames {
			levels := c.spec.Levels[i]

			var candidates []*int
			if len(levels) == 0 {
				candidates = []*int{nil}
			}

			for _, lv := range levels {
				candidates = append(candidates, &lv)
			}

			for _, level := range candidates {
				s := c.slot(prefix, level)

				if err := ensureDir(c.log, s.Path); err != nil {
					yield(Slot{}, err)
					return
				}

				if err := ensureDir(c.log, s.RootPath); err != nil {
					yield(Slot{}, err)
					return
				}

				if !yield(s, nil) {
					return
				}
			}
		}
	}
}

// SlotList collects Slots into a slice
func (c *Catalog) SlotList() ([]Slot, error) {
	var out []Slot

	for s, err := range c.Slots() {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, nil
}

// SlotByName finds the slot with the given composite name
func (c *Catalog) SlotByName(name string) (Slot, bool, error) {
	for s, err := range c.Slots() {
		if err != nil {
			return Slot{}, false, err
		}

		if s.Name == name {
			return s, true, nil
		}
	}

	return Slot{}, false, nil
}

func ensureDir(log logrus.FieldLogger, path string) error {
	if _, err := os.Lstat(path); err == nil {
		return nil
	}

	log.WithField("path", path).Debug("Creating directory")

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	return nil
}

// PeriodPath is the canonical file holding t for the slot
func (c *Catalog) PeriodPath(s Slot, t time.Time) string {
	return filepath.Join(s.Path, c.spec.OutputGroupBy.Format(t)+FileExtension)
}

// CanonicalPath returns the single canonical file for a batch of dates. It
// fails with ErrConfig when the batch spans more than one output period.
func (c *Catalog) CanonicalPath(s Slot, dates []time.Time) (string, error) {
	paths := c.CanonicalPaths(s, dates)

	switch len(paths) {
	case 0:
		return "", fmt.Errorf("%w: no dates supplied for %s", ErrConfig, s.Name)
	case 1:
		return paths[0], nil
	default:
		return "", fmt.Errorf("%w: %w: %s covers %d files", ErrConfig, ErrSpansPeriods, s.Name, len(paths))
	}
}

// CanonicalPaths returns every canonical file touched by dates, in the order
// first encountered
func (c *Catalog) CanonicalPaths(s Slot, dates []time.Time) []string {
	var out []string

	seen := make(map[string]struct{})
	for _, d := range dates {
		p := c.PeriodPath(s, d)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out
}

// RecordProduced adds paths to the inventory for the named slot. The stored
// set is sorted and deduplicated so call order does not matter.
func (c *Catalog) RecordProduced(name string, paths ...string) {
	merged := append(slices.Clone(c.files[name]), paths...)
	slices.Sort(merged)
	c.files[name] = slices.Compact(merged)
}

// Files returns the inventory for the named slot
func (c *Catalog) Files(name string) []string {
	return slices.Clone(c.files[name])
}

// Inventory returns a copy of the whole inventory
func (c *Catalog) Inventory() map[string][]string {
	out := make(map[string][]string, len(c.files))
	for k, v := range c.files {
		out[k] = slices.Clone(v)
	}

	return out
}
