// Package frequency provides the temporal granularities used to request,
// batch, store and group time-series data.
package frequency

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

var (
	// ErrUnknownFrequency is returned when a frequency name cannot be parsed
	ErrUnknownFrequency = errors.New("unknown frequency")
	// ErrUnknownAttribute is returned when a grouping attribute name is not recognised
	ErrUnknownAttribute = errors.New("unknown grouping attribute")
)

// Frequency is a temporal granularity. The underlying value is its
// specificity rank: YEAR is the coarsest and HOUR the finest.
type Frequency int

// Supported frequencies, ordered from coarsest to finest
const (
	Year Frequency = iota + 1
	Month
	Day
	Hour
)

type properties struct {
	name      string
	pattern   *strftime.Strftime
	resample  string
	attribute Attribute
}

//nolint:gochecknoglobals // immutable lookup table keyed by frequency
var table = map[Frequency]properties{
	Year:  {name: "YEAR", pattern: mustPattern("%Y"), resample: "Y", attribute: AttributeYear},
	Month: {name: "MONTH", pattern: mustPattern("%Y%m"), resample: "M", attribute: AttributeMonth},
	Day:   {name: "DAY", pattern: mustPattern("%Y%m%d"), resample: "D", attribute: AttributeDate},
	Hour:  {name: "HOUR", pattern: mustPattern("%Y%m%d%H"), resample: "h", attribute: AttributeHour},
}

func mustPattern(p string) *strftime.Strftime {
	f, err := strftime.New(p)
	if err != nil {
		panic(fmt.Sprintf("frequency: invalid date format %q: %v", p, err))
	}

	return f
}

// All returns every frequency from coarsest to finest
func All() []Frequency {
	return []Frequency{Year, Month, Day, Hour}
}

// Parse converts a serialized frequency name (case-insensitive) to a Frequency
func Parse(name string) (Frequency, error) {
	for f, p := range table {
		if strings.EqualFold(p.name, strings.TrimSpace(name)) {
			return f, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownFrequency, name)
}

// Valid reports whether f is one of the supported frequencies
func (f Frequency) Valid() bool {
	_, ok := table[f]
	return ok
}

// Name returns the upper-case serialized name
func (f Frequency) Name() string {
	if p, ok := table[f]; ok {
		return p.name
	}

	return fmt.Sprintf("Frequency(%d)", int(f))
}

// String implements fmt.Stringer
func (f Frequency) String() string {
	return f.Name()
}

// DateFormat returns the strftime-style format used for canonical filenames
func (f Frequency) DateFormat() string {
	if p, ok := table[f]; ok {
		return p.pattern.Pattern()
	}

	return ""
}

// Format renders t in UTC with the frequency's DateFormat
func (f Frequency) Format(t time.Time) string {
	p, ok := table[f]
	if !ok {
		return ""
	}

	return p.pattern.FormatString(t.UTC())
}

// ResampleCode returns the resampling code for this granularity
func (f Frequency) ResampleCode() string {
	return table[f].resample
}

// Attribute returns the grouping attribute used when batching requests
func (f Frequency) Attribute() Attribute {
	return table[f].attribute
}

// CoarserThan reports whether f covers a longer period than o
func (f Frequency) CoarserThan(o Frequency) bool {
	return f < o
}

// FinerThan reports whether f covers a shorter period than o
func (f Frequency) FinerThan(o Frequency) bool {
	return f > o
}

// Clamp snaps f into the inclusive range [coarsest, finest]
func (f Frequency) Clamp(coarsest, finest Frequency) Frequency {
	if f < coarsest {
		return coarsest
	}

	if f > finest {
		return finest
	}

	return f
}

// Truncate returns the start of the period containing t, in UTC
func (f Frequency) Truncate(t time.Time) time.Time {
	t = t.UTC()

	switch f {
	case Year:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	}
}

// Next returns the start of the period following the one containing t
func (f Frequency) Next(t time.Time) time.Time {
	start := f.Truncate(t)

	switch f {
	case Year:
		return start.AddDate(1, 0, 0)
	case Month:
		return start.AddDate(0, 1, 0)
	case Day:
		return start.AddDate(0, 0, 1)
	default:
		return start.Add(time.Hour)
	}
}

// Range returns the start of every period overlapping [start, end]
func (f Frequency) Range(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}

	var out []time.Time
	for t := f.Truncate(start); !t.After(end); t = f.Next(t) {
		out = append(out, t)
	}

	return out
}

// MarshalText serializes the frequency as its name
func (f Frequency) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrequency, int(f))
	}

	return []byte(f.Name()), nil
}

// UnmarshalText parses a serialized frequency name
func (f *Frequency) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*f = parsed

	return nil
}
