package ncdata

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// Write stores the dataset as a classic NetCDF file at path, replacing any
// existing file. The time axis is written as hours since the Unix epoch.
func Write(path string, ds *Dataset) error {
	if ds.Len() == 0 {
		return fmt.Errorf("%w: %w: %s", ErrDataSet, ErrEmpty, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrDataSet, path, err)
	}

	if err := writeContents(cw, ds); err != nil {
		_ = cw.Close()
		_ = os.Remove(path)

		return fmt.Errorf("%w: failed to write %s: %w", ErrDataSet, path, err)
	}

	if err := cw.Close(); err != nil {
		_ = os.Remove(path)

		return fmt.Errorf("%w: failed to finalise %s: %w", ErrDataSet, path, err)
	}

	return nil
}

func writeContents(cw *cdf.CDFWriter, ds *Dataset) error {
	timeName := ds.TimeName
	if timeName == "" {
		timeName = "time"
	}

	timeAttrs, err := attributeMap(Attributes{
		"standard_name": "time",
		"units":         TimeUnits,
		"calendar":      "standard",
	})
	if err != nil {
		return err
	}

	if err := cw.AddVar(timeName, api.Variable{
		Values:     encodeHours(ds.Times),
		Dimensions: []string{timeName},
		Attributes: timeAttrs,
	}); err != nil {
		return fmt.Errorf("failed to add time axis: %w", err)
	}

	for _, c := range ds.Coords {
		attrs, err := attributeMap(c.Attributes)
		if err != nil {
			return err
		}

		if err := cw.AddVar(c.Name, api.Variable{
			Values:     nest(c.Values, c.Shape),
			Dimensions: c.Dims,
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("failed to add coordinate %s: %w", c.Name, err)
		}
	}

	for _, v := range ds.Variables {
		attrs, err := attributeMap(v.Attributes)
		if err != nil {
			return err
		}

		flat := make([]float64, 0, len(v.Steps)*v.StepSize())
		for _, s := range v.Steps {
			flat = append(flat, s...)
		}

		dims := slices.Clone(v.Dims)
		dims[0] = timeName

		if err := cw.AddVar(v.Name, api.Variable{
			Values:     nest(flat, append([]int{len(v.Steps)}, v.Shape...)),
			Dimensions: dims,
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("failed to add variable %s: %w", v.Name, err)
		}
	}

	if len(ds.Attributes) > 0 {
		global, err := attributeMap(ds.Attributes)
		if err != nil {
			return err
		}

		if err := cw.AddGlobalAttrs(global); err != nil {
			return fmt.Errorf("failed to add global attributes: %w", err)
		}
	}

	return nil
}

func attributeMap(attrs Attributes) (api.AttributeMap, error) {
	keys := make([]string, 0, len(attrs))
	values := make(map[string]any, len(attrs))

	for k, v := range attrs {
		keys = append(keys, k)
		values[k] = writableAttr(v)
	}

	slices.Sort(keys)

	am, err := util.NewOrderedMap(keys, values)
	if err != nil {
		return nil, fmt.Errorf("failed to build attributes: %w", err)
	}

	return am, nil
}

func writableAttr(v any) any {
	switch val := v.(type) {
	case int:
		return int32(val) //nolint:gosec // attribute values are small
	case bool:
		if val {
			return int8(1)
		}
		return int8(0)
	case string, int8, int16, int32, int64, float32, float64,
		[]int8, []int16, []int32, []int64, []float32, []float64:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// nest rebuilds a nested []...[]float64 of the given shape from flat values
func nest(flat []float64, shape []int) any {
	if len(shape) == 0 {
		if len(flat) == 0 {
			return float64(0)
		}

		return flat[0]
	}

	return nestValue(flat, shape).Interface()
}

func nestValue(flat []float64, shape []int) reflect.Value {
	if len(shape) == 1 {
		return reflect.ValueOf(slices.Clone(flat[:shape[0]]))
	}

	stride := 1
	for _, s := range shape[1:] {
		stride *= s
	}

	out := reflect.MakeSlice(reflect.SliceOf(nestedType(len(shape)-1)), shape[0], shape[0])
	for i := 0; i < shape[0]; i++ {
		out.Index(i).Set(nestValue(flat[i*stride:(i+1)*stride], shape[1:]))
	}

	return out
}

func nestedType(depth int) reflect.Type {
	t := reflect.TypeOf(float64(0))
	for i := 0; i < depth; i++ {
		t = reflect.SliceOf(t)
	}

	return t
}
