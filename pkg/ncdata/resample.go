package ncdata

import (
	"math"
	"slices"
	"time"

	"github.com/geofetch/geofetch/pkg/frequency"
)

// Group is one output period of a grouped dataset
type Group struct {
	Period  time.Time
	Dataset *Dataset
}

// Resample aggregates every time step into the period of freq containing it,
// averaging values and ignoring NaNs. Output steps are labelled with the
// period start and sorted ascending.
func (d *Dataset) Resample(freq frequency.Frequency) *Dataset {
	periods, members := d.bucket(freq)

	out := &Dataset{
		TimeName:   d.TimeName,
		Times:      periods,
		Coords:     d.cloneCoords(),
		Attributes: d.Attributes.Clone(),
	}

	for _, v := range d.Variables {
		nv := &Variable{
			Name:       v.Name,
			Dims:       slices.Clone(v.Dims),
			Shape:      slices.Clone(v.Shape),
			Steps:      make([][]float64, len(periods)),
			Attributes: v.Attributes.Clone(),
		}

		for i, idx := range members {
			nv.Steps[i] = mean(v, idx)
		}

		out.Variables = append(out.Variables, nv)
	}

	return out
}

// GroupBy splits the dataset into one dataset per period of freq, ordered by
// period. Time steps are not aggregated.
func (d *Dataset) GroupBy(freq frequency.Frequency) []Group {
	periods, members := d.bucket(freq)

	groups := make([]Group, len(periods))
	for i, p := range periods {
		groups[i] = Group{Period: p, Dataset: d.Select(members[i])}
	}

	return groups
}

// bucket returns ascending period starts and, per period, the member indices
// in their original order
func (d *Dataset) bucket(freq frequency.Frequency) ([]time.Time, [][]int) {
	index := make(map[int64]int)

	var (
		periods []time.Time
		members [][]int
	)

	for i, t := range d.Times {
		p := freq.Truncate(t)
		key := p.Unix()

		pos, ok := index[key]
		if !ok {
			pos = len(periods)
			index[key] = pos
			periods = append(periods, p)
			members = append(members, nil)
		}

		members[pos] = append(members[pos], i)
	}

	order := make([]int, len(periods))
	for i := range order {
		order[i] = i
	}

	slices.SortFunc(order, func(a, b int) int { return periods[a].Compare(periods[b]) })

	sortedPeriods := make([]time.Time, len(periods))
	sortedMembers := make([][]int, len(periods))

	for i, o := range order {
		sortedPeriods[i] = periods[o]
		sortedMembers[i] = members[o]
	}

	return sortedPeriods, sortedMembers
}

func mean(v *Variable, indices []int) []float64 {
	size := v.StepSize()
	sums := make([]float64, size)
	counts := make([]int, size)

	for _, idx := range indices {
		for j, val := range v.Steps[idx] {
			if math.IsNaN(val) {
				continue
			}
			sums[j] += val
			counts[j]++
		}
	}

	for j := range sums {
		if counts[j] == 0 {
			sums[j] = math.NaN()
			continue
		}
		sums[j] /= float64(counts[j])
	}

	return sums
}
