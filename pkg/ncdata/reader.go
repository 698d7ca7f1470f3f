package ncdata

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// OpenOption adjusts how a file is interpreted
type OpenOption func(*openOptions)

type openOptions struct {
	stamp *time.Time
}

// WithTime stamps a file that has no time axis of its own. Every data
// variable becomes a single time step at t.
func WithTime(t time.Time) OpenOption {
	return func(o *openOptions) {
		ts := t.UTC()
		o.stamp = &ts
	}
}

// Open reads a NetCDF file into memory. The file handle is closed before
// returning.
func Open(path string, opts ...OpenOption) (*Dataset, error) {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}

	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrDataSet, path, err)
	}
	defer nc.Close()

	ds, err := fromGroup(nc, o)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataSet, path, err)
	}

	return ds, nil
}

// OpenAll reads several files and concatenates them along time, in order
func OpenAll(paths []string, opts ...OpenOption) (*Dataset, error) {
	var out *Dataset

	for _, p := range paths {
		ds, err := Open(p, opts...)
		if err != nil {
			return nil, err
		}

		if out == nil {
			out = ds
			continue
		}

		out, err = Concat(out, ds)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to combine %s: %w", ErrDataSet, p, err)
		}
	}

	if out == nil {
		return nil, fmt.Errorf("%w: no input files", ErrDataSet)
	}

	return out, nil
}

// ReadTimes returns only the time coordinate of a file
func ReadTimes(path string) ([]time.Time, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrDataSet, path, err)
	}
	defer nc.Close()

	name := findTimeAxis(nc.ListVariables())
	if name == "" {
		return nil, fmt.Errorf("%w: %w: %s", ErrDataSet, ErrNoTimeAxis, path)
	}

	times, err := readTimeAxis(nc, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataSet, path, err)
	}

	return times, nil
}

func findTimeAxis(names []string) string {
	for _, candidate := range TimeAxisNames {
		if slices.Contains(names, candidate) {
			return candidate
		}
	}

	return ""
}

func readTimeAxis(nc api.Group, name string) ([]time.Time, error) {
	getter, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}

	raw, err := getter.Values()
	if err != nil {
		return nil, err
	}

	values, _, ok := flatten(raw)
	if !ok {
		return nil, fmt.Errorf("time axis %s is not numeric", name)
	}

	units, ok := attrString(getter.Attributes(), "units")
	if !ok {
		return nil, fmt.Errorf("time axis %s has no units", name)
	}

	unit, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}

	return unit.decode(values), nil
}

func fromGroup(nc api.Group, o *openOptions) (*Dataset, error) {
	names := nc.ListVariables()
	timeName := findTimeAxis(names)

	ds := &Dataset{
		TimeName:   "time",
		Attributes: readAttributes(nc.Attributes()),
	}

	switch {
	case timeName != "":
		times, err := readTimeAxis(nc, timeName)
		if err != nil {
			return nil, err
		}
		ds.TimeName = timeName
		ds.Times = times
	case o.stamp != nil:
		ds.Times = []time.Time{*o.stamp}
	default:
		return nil, ErrNoTimeAxis
	}

	for _, name := range names {
		if name == timeName {
			continue
		}

		v, err := nc.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read variable %s: %w", name, err)
		}

		flat, shape, ok := flatten(v.Values)
		if !ok {
			continue
		}

		attrs := readAttributes(v.Attributes)
		unpack(flat, attrs)

		isCoord := len(v.Dimensions) <= 1 && (len(v.Dimensions) == 0 || v.Dimensions[0] == name)

		switch {
		case timeName != "" && len(v.Dimensions) > 0 && v.Dimensions[0] == timeName:
			if err := ds.AddVariable(split(name, v.Dimensions, shape, flat, attrs)); err != nil {
				return nil, err
			}
		case timeName == "" && !isCoord:
			variable := &Variable{
				Name:       name,
				Dims:       append([]string{ds.TimeName}, v.Dimensions...),
				Shape:      shape,
				Steps:      [][]float64{flat},
				Attributes: attrs,
			}
			if err := ds.AddVariable(variable); err != nil {
				return nil, err
			}
		default:
			ds.Coords = append(ds.Coords, Coord{
				Name:       name,
				Dims:       slices.Clone(v.Dimensions),
				Shape:      shape,
				Values:     flat,
				Attributes: attrs,
			})
		}
	}

	return ds, nil
}

func split(name string, dims []string, shape []int, flat []float64, attrs Attributes) *Variable {
	v := &Variable{
		Name:       name,
		Dims:       slices.Clone(dims),
		Shape:      slices.Clone(shape[1:]),
		Attributes: attrs,
	}

	steps := shape[0]
	size := v.StepSize()
	v.Steps = make([][]float64, steps)

	for i := 0; i < steps; i++ {
		v.Steps[i] = slices.Clone(flat[i*size : (i+1)*size])
	}

	return v
}

func readAttributes(am api.AttributeMap) Attributes {
	attrs := Attributes{}
	if am == nil {
		return attrs
	}

	for _, k := range am.Keys() {
		if v, ok := am.Get(k); ok {
			attrs[k] = v
		}
	}

	return attrs
}

func attrString(am api.AttributeMap, key string) (string, bool) {
	if am == nil {
		return "", false
	}

	v, ok := am.Get(key)
	if !ok {
		return "", false
	}

	s, ok := v.(string)

	return s, ok
}

func attrFloat(attrs Attributes, key string) (float64, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}

	flat, _, ok := flatten(v)
	if !ok || len(flat) == 0 {
		return 0, false
	}

	return flat[0], true
}

// unpack applies CF packing and fill conventions in place and strips the
// attributes that described them
func unpack(values []float64, attrs Attributes) {
	scale, hasScale := attrFloat(attrs, "scale_factor")
	offset, hasOffset := attrFloat(attrs, "add_offset")
	fill, hasFill := attrFloat(attrs, "_FillValue")
	missing, hasMissing := attrFloat(attrs, "missing_value")

	if !hasScale {
		scale = 1
	}

	for i, v := range values {
		if (hasFill && v == fill) || (hasMissing && v == missing) {
			values[i] = math.NaN()
			continue
		}

		if hasScale || hasOffset {
			values[i] = v*scale + offset
		}
	}

	for _, k := range []string{"scale_factor", "add_offset", "_FillValue", "missing_value"} {
		delete(attrs, k)
	}
}

// flatten converts a scalar or arbitrarily nested numeric slice into a flat
// float64 slice plus its shape
func flatten(values any) ([]float64, []int, bool) {
	rv := reflect.ValueOf(values)
	if !rv.IsValid() {
		return nil, nil, false
	}

	var shape []int
	for cur := rv; cur.Kind() == reflect.Slice; cur = cur.Index(0) {
		shape = append(shape, cur.Len())
		if cur.Len() == 0 {
			break
		}
	}

	flat := make([]float64, 0)
	if !appendFlat(&flat, rv) {
		return nil, nil, false
	}

	return flat, shape, true
}

func appendFlat(dst *[]float64, rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if !appendFlat(dst, rv.Index(i)) {
				return false
			}
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*dst = append(*dst, float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*dst = append(*dst, float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		*dst = append(*dst, rv.Float())
	default:
		return false
	}

	return true
}
