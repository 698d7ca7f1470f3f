package esgf

import (
	"path"
	"strings"
	"time"
)

// fileRange parses the trailing START-END component of a CMIP style file
// name, e.g. siconca_SImon_MRI-ESM2-0_ssp245_r1i1p1f1_gn_201501-210012.nc.
// The returned end is exclusive.
func fileRange(u string) (time.Time, time.Time, bool) {
	base := strings.TrimSuffix(path.Base(u), ".nc")

	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return time.Time{}, time.Time{}, false
	}

	from, to, ok := strings.Cut(base[idx+1:], "-")
	if !ok || len(from) != len(to) {
		return time.Time{}, time.Time{}, false
	}

	var (
		layout string
		step   func(time.Time) time.Time
	)

	switch len(from) {
	case 4:
		layout, step = "2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	case 6:
		layout, step = "200601", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	case 8:
		layout, step = "20060102", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case 10:
		layout, step = "2006010215", func(t time.Time) time.Time { return t.Add(time.Hour) }
	case 12:
		layout, step = "200601021504", func(t time.Time) time.Time { return t.Add(time.Minute) }
	default:
		return time.Time{}, time.Time{}, false
	}

	start, err := time.Parse(layout, from)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	end, err := time.Parse(layout, to)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	return start, step(end), true
}

// overlaps reports whether [fileStart, fileEnd) intersects the inclusive
// batch [start, end]
func overlaps(fileStart, fileEnd, start, end time.Time) bool {
	return !fileStart.After(end) && start.Before(fileEnd)
}
