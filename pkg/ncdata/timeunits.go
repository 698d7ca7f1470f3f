package ncdata

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnits is the units attribute written for every time axis
const TimeUnits = "hours since 1970-01-01 00:00:00"

//nolint:gochecknoglobals // accepted reference-date layouts
var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

// timeUnit is a parsed "<unit> since <epoch>" attribute
type timeUnit struct {
	step  time.Duration
	epoch time.Time
}

func parseTimeUnits(units string) (timeUnit, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return timeUnit{}, fmt.Errorf("%w: unsupported time units %q", ErrDataSet, units)
	}

	var step time.Duration

	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "s":
		step = time.Second
	case "minutes", "minute", "mins":
		step = time.Minute
	case "hours", "hour", "hrs", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return timeUnit{}, fmt.Errorf("%w: unsupported time step %q", ErrDataSet, parts[0])
	}

	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(ref, "UTC")
	ref = strings.TrimSuffix(ref, "Z")
	ref = strings.TrimSpace(ref)

	for _, layout := range epochLayouts {
		if epoch, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return timeUnit{step: step, epoch: epoch}, nil
		}
	}

	return timeUnit{}, fmt.Errorf("%w: unparseable reference date %q", ErrDataSet, parts[1])
}

func (u timeUnit) decode(values []float64) []time.Time {
	out := make([]time.Time, len(values))
	for i, v := range values {
		secs := math.Round(v * u.step.Seconds())
		out[i] = u.epoch.Add(time.Duration(secs) * time.Second)
	}

	return out
}

func encodeHours(times []time.Time) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = float64(t.Unix()) / 3600
	}

	return out
}
