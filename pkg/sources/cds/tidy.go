package cds

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/geofetch/geofetch/pkg/ncdata"
)

var (
	// ErrNoDataVariable is returned when a result file holds only coordinates
	ErrNoDataVariable = errors.New("no data variable in result")
	// ErrMultipleDataVariables is returned when a result holds more than one field
	ErrMultipleDataVariables = errors.New("more than one data variable in result")
)

//nolint:gochecknoglobals // read-only name sets
var (
	auxiliaryVariables = []string{"number", "expver", "time", "date", "valid_time", "latitude", "longitude", "pressure_level"}
	droppedCoordinates = []string{"number", "expver", "isobaricInhPa", "pressure_level"}
)

// tidy rewrites a downloaded result as a single variable named prefix on a
// "time" axis, with any single pressure level squeezed out
func tidy(src, dest, prefix string) error {
	ds, err := ncdata.Open(src)
	if err != nil {
		return err
	}

	var data []string
	for _, name := range ds.VariableNames() {
		if !slices.Contains(auxiliaryVariables, name) {
			data = append(data, name)
		}
	}

	switch len(data) {
	case 0:
		return fmt.Errorf("%w: %s", ErrNoDataVariable, src)
	case 1:
	default:
		return fmt.Errorf("%w: %s has %v", ErrMultipleDataVariables, src, data)
	}

	ds.Drop("number", "expver")
	ds.Squeeze("pressure_level")
	ds.Rename(map[string]string{data[0]: prefix})
	ds.TimeName = "time"

	for _, v := range ds.Variables {
		if coords, ok := v.Attributes["coordinates"].(string); ok {
			v.Attributes["coordinates"] = cleanCoordinates(coords)
		}
	}

	return ncdata.Write(dest, ds)
}

func cleanCoordinates(coords string) string {
	var out []string

	for _, c := range strings.Fields(coords) {
		switch {
		case slices.Contains(droppedCoordinates, c):
			continue
		case c == "valid_time" || c == "date":
			c = "time"
		}

		out = append(out, c)
	}

	return strings.Join(out, " ")
}
