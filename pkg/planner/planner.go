// Package planner groups request dates into contiguous batches so that each
// batch can be satisfied by a single remote request.
package planner

import (
	"slices"
	"time"

	"github.com/geofetch/geofetch/pkg/frequency"
)

// Batch sorts dates ascending and splits them into runs where each date
// shares attr with the date immediately before it. Grouping is by adjacency,
// not by value: two dates in the same month separated by a date from another
// month land in different batches. Duplicates are preserved.
func Batch(dates []time.Time, attr frequency.Attribute) [][]time.Time {
	if len(dates) == 0 {
		return nil
	}

	sorted := slices.Clone(dates)
	slices.SortStableFunc(sorted, func(a, b time.Time) int {
		return a.Compare(b)
	})

	batches := make([][]time.Time, 0)
	current := []time.Time{sorted[0]}

	for _, d := range sorted[1:] {
		last := current[len(current)-1]
		if attr.Value(d) == attr.Value(last) {
			current = append(current, d)
			continue
		}

		batches = append(batches, current)
		current = []time.Time{d}
	}

	return append(batches, current)
}

// Flatten concatenates batches back into a single list
func Flatten(batches [][]time.Time) []time.Time {
	var out []time.Time
	for _, b := range batches {
		out = append(out, b...)
	}

	return out
}
