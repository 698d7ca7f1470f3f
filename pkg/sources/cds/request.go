package cds

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/frequency"
)

const (
	singleLevels   = "single-levels"
	pressureLevels = "pressure-levels"
	defaultTime    = "12:00"
)

// request builds the collection name and retrieve inputs for one batch
func (s *Source) request(slot dataset.Slot, dates []time.Time) (string, map[string]any, error) {
	variable, ok := s.variables[slot.Prefix]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownVariable, slot.Prefix)
	}

	monthly := s.storage.CoarserThan(frequency.Day)

	product := s.cfg.ProductType
	if product == "" {
		product = "reanalysis"
		if monthly {
			product = "monthly_averaged_reanalysis_by_hour_of_day"
		}
	}

	inputs := map[string]any{
		"product_type":    []string{product},
		"variable":        []string{variable},
		"year":            []string{strconv.Itoa(dates[0].Year())},
		"month":           unique(dates, func(t time.Time) int { return int(t.Month()) }),
		"data_format":     "netcdf",
		"download_format": "unarchived",
		"area":            s.region.Bounds(),
	}

	if len(s.cfg.Grid) > 0 {
		inputs["grid"] = s.cfg.Grid
	}

	level := singleLevels
	if slot.Level != nil {
		level = pressureLevels
		inputs["pressure_level"] = []string{strconv.Itoa(*slot.Level)}
	}

	collection := s.cfg.Dataset
	switch {
	case collection == "":
		collection = "reanalysis-era5-" + level
		if monthly {
			collection += "-monthly-means"
		}
	case slot.Level != nil:
		collection = strings.Replace(collection, singleLevels, pressureLevels, 1)
	}

	if !monthly {
		inputs["day"] = unique(dates, time.Time.Day)
		inputs["time"] = s.times()
	}

	return collection, inputs, nil
}

func (s *Source) times() []string {
	switch {
	case len(s.cfg.Times) == 1 && s.cfg.Times[0] == "all", len(s.cfg.Times) == 0 && s.storage == frequency.Hour:
		out := make([]string, 24)
		for h := range out {
			out[h] = fmt.Sprintf("%02d:00", h)
		}

		return out
	case len(s.cfg.Times) > 0:
		return slices.Clone(s.cfg.Times)
	default:
		return []string{defaultTime}
	}
}

// unique returns the sorted, zero-padded distinct values of field
func unique(dates []time.Time, field func(time.Time) int) []string {
	values := make([]int, 0, len(dates))
	for _, d := range dates {
		values = append(values, field(d))
	}

	slices.Sort(values)
	values = slices.Compact(values)

	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%02d", v)
	}

	return out
}
