// Package ncdata is a narrow, time-indexed view over NetCDF files: enough to
// open, inspect, reshape along time, and write back the fields produced by
// acquisition sources.
package ncdata

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// TimeAxisNames lists the coordinate names recognised as the time axis
//
//nolint:gochecknoglobals // read-only list
var TimeAxisNames = []string{"time", "valid_time", "date"}

// Attributes holds NetCDF attributes keyed by name
type Attributes map[string]any

// Clone returns a shallow copy
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}

	return maps.Clone(a)
}

// Variable is a time-major field. Steps holds one flattened spatial payload
// per time step; Shape describes the spatial dimensions of each payload.
type Variable struct {
	Name       string
	Dims       []string
	Shape      []int
	Steps      [][]float64
	Attributes Attributes
}

// StepSize is the number of values in a single time step
func (v *Variable) StepSize() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}

	return n
}

func (v *Variable) clone() *Variable {
	steps := make([][]float64, len(v.Steps))
	for i, s := range v.Steps {
		steps[i] = slices.Clone(s)
	}

	return &Variable{
		Name:       v.Name,
		Dims:       slices.Clone(v.Dims),
		Shape:      slices.Clone(v.Shape),
		Steps:      steps,
		Attributes: v.Attributes.Clone(),
	}
}

// Coord is a time-independent variable, typically a spatial axis
type Coord struct {
	Name       string
	Dims       []string
	Shape      []int
	Values     []float64
	Attributes Attributes
}

// Dataset is an in-memory time series of one or more variables sharing a
// time axis
type Dataset struct {
	TimeName   string
	Times      []time.Time
	Variables  []*Variable
	Coords     []Coord
	Attributes Attributes
}

// New creates an empty dataset on the given time axis
func New(times []time.Time) *Dataset {
	return &Dataset{
		TimeName:   "time",
		Times:      slices.Clone(times),
		Attributes: Attributes{},
	}
}

// AddVariable appends a variable, checking it against the time axis
func (d *Dataset) AddVariable(v *Variable) error {
	if len(v.Steps) != len(d.Times) {
		return fmt.Errorf("%w: variable %s has %d steps, dataset has %d", ErrShapeMismatch, v.Name, len(v.Steps), len(d.Times))
	}

	for i, s := range v.Steps {
		if len(s) != v.StepSize() {
			return fmt.Errorf("%w: variable %s step %d has %d values, expected %d", ErrShapeMismatch, v.Name, i, len(s), v.StepSize())
		}
	}

	if len(v.Dims) != len(v.Shape)+1 {
		dims := []string{d.TimeName}
		for i := range v.Shape {
			dims = append(dims, fmt.Sprintf("dim_%d", i))
		}
		v.Dims = dims
	}

	if v.Attributes == nil {
		v.Attributes = Attributes{}
	}

	d.Variables = append(d.Variables, v)

	return nil
}

// Variable looks up a variable by name
func (d *Dataset) Variable(name string) (*Variable, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}

	return nil, false
}

// VariableNames returns the data variable names in order
func (d *Dataset) VariableNames() []string {
	names := make([]string, len(d.Variables))
	for i, v := range d.Variables {
		names[i] = v.Name
	}

	return names
}

// Len is the number of time steps
func (d *Dataset) Len() int {
	return len(d.Times)
}

// Clone deep-copies the dataset
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		TimeName:   d.TimeName,
		Times:      slices.Clone(d.Times),
		Coords:     d.cloneCoords(),
		Attributes: d.Attributes.Clone(),
	}

	for _, v := range d.Variables {
		out.Variables = append(out.Variables, v.clone())
	}

	return out
}

func (d *Dataset) cloneCoords() []Coord {
	coords := make([]Coord, len(d.Coords))
	for i, c := range d.Coords {
		coords[i] = Coord{
			Name:       c.Name,
			Dims:       slices.Clone(c.Dims),
			Shape:      slices.Clone(c.Shape),
			Values:     slices.Clone(c.Values),
			Attributes: c.Attributes.Clone(),
		}
	}

	return coords
}

// Select returns a new dataset containing the given time indices, in order
func (d *Dataset) Select(indices []int) *Dataset {
	out := &Dataset{
		TimeName:   d.TimeName,
		Times:      make([]time.Time, len(indices)),
		Coords:     d.cloneCoords(),
		Attributes: d.Attributes.Clone(),
	}

	for i, idx := range indices {
		out.Times[i] = d.Times[idx]
	}

	for _, v := range d.Variables {
		nv := &Variable{
			Name:       v.Name,
			Dims:       slices.Clone(v.Dims),
			Shape:      slices.Clone(v.Shape),
			Steps:      make([][]float64, len(indices)),
			Attributes: v.Attributes.Clone(),
		}
		for i, idx := range indices {
			nv.Steps[i] = slices.Clone(v.Steps[idx])
		}
		out.Variables = append(out.Variables, nv)
	}

	return out
}

// Only returns a copy restricted to the named variables
func (d *Dataset) Only(names ...string) *Dataset {
	out := d.Clone()
	out.Variables = slices.DeleteFunc(out.Variables, func(v *Variable) bool {
		return !slices.Contains(names, v.Name)
	})

	return out
}

// Drop removes the named variables in place. Unknown names are ignored.
func (d *Dataset) Drop(names ...string) {
	d.Variables = slices.DeleteFunc(d.Variables, func(v *Variable) bool {
		return slices.Contains(names, v.Name)
	})
	d.Coords = slices.DeleteFunc(d.Coords, func(c Coord) bool {
		return slices.Contains(names, c.Name)
	})
}

// Squeeze removes the spatial dimension dim from every variable where it has
// length one, and drops the coordinate of the same name
func (d *Dataset) Squeeze(dim string) {
	for _, v := range d.Variables {
		i := slices.Index(v.Dims, dim)
		if i < 1 || i > len(v.Shape) || v.Shape[i-1] != 1 {
			continue
		}

		v.Dims = slices.Delete(v.Dims, i, i+1)
		v.Shape = slices.Delete(v.Shape, i-1, i)
	}

	d.Coords = slices.DeleteFunc(d.Coords, func(c Coord) bool {
		return c.Name == dim
	})
}

// Rename renames variables in place using an old -> new mapping
func (d *Dataset) Rename(mapping map[string]string) {
	for _, v := range d.Variables {
		if renamed, ok := mapping[v.Name]; ok {
			v.Name = renamed
		}
	}
}

// StampTime replaces the time coordinate. A single timestamp may be applied
// to a single-step dataset; otherwise the counts must match.
func (d *Dataset) StampTime(times ...time.Time) error {
	if len(times) != len(d.Times) {
		return fmt.Errorf("%w: %d timestamps for %d steps", ErrShapeMismatch, len(times), len(d.Times))
	}

	for i, t := range times {
		d.Times[i] = t.UTC()
	}

	return nil
}

// SortByTime orders time steps ascending. The sort is stable so that equal
// timestamps keep their concatenation order.
func (d *Dataset) SortByTime() {
	indices := make([]int, len(d.Times))
	for i := range indices {
		indices[i] = i
	}

	slices.SortStableFunc(indices, func(a, b int) int {
		return d.Times[a].Compare(d.Times[b])
	})

	d.reorder(indices)
}

// DropDuplicateTimes removes repeated timestamps keeping the first occurrence
func (d *Dataset) DropDuplicateTimes() int {
	seen := make(map[int64]struct{}, len(d.Times))
	keep := make([]int, 0, len(d.Times))

	for i, t := range d.Times {
		key := t.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}

	dropped := len(d.Times) - len(keep)
	if dropped > 0 {
		d.reorder(keep)
	}

	return dropped
}

func (d *Dataset) reorder(indices []int) {
	selected := d.Select(indices)
	d.Times = selected.Times
	d.Variables = selected.Variables
}

// Concat appends b after a along the time axis. Both datasets must carry the
// same variables with the same spatial shape.
func Concat(a, b *Dataset) (*Dataset, error) {
	if len(a.Variables) != len(b.Variables) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.VariableNames(), b.VariableNames())
	}

	out := a.Clone()
	out.Times = append(out.Times, b.Times...)

	for _, v := range out.Variables {
		other, ok := b.Variable(v.Name)
		if !ok {
			return nil, fmt.Errorf("%w: variable %s missing from second dataset", ErrShapeMismatch, v.Name)
		}

		if !slices.Equal(v.Shape, other.Shape) {
			return nil, fmt.Errorf("%w: variable %s shape %v vs %v", ErrShapeMismatch, v.Name, v.Shape, other.Shape)
		}

		for _, s := range other.Steps {
			v.Steps = append(v.Steps, slices.Clone(s))
		}
	}

	return out, nil
}
