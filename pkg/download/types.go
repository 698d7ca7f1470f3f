package download

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/geofetch/geofetch/pkg/dataset"
)

// WorkUnit is one slot paired with a contiguous batch of dates
type WorkUnit struct {
	Slot  dataset.Slot
	Dates []time.Time
}

// String summarises the unit for logging
func (u WorkUnit) String() string {
	if len(u.Dates) == 0 {
		return u.Slot.Name + "[]"
	}

	return fmt.Sprintf("%s[%s..%s]", u.Slot.Name,
		u.Dates[0].Format(time.DateOnly), u.Dates[len(u.Dates)-1].Format(time.DateOnly))
}

// Fetcher retrieves the data for one work unit. It returns the paths it
// produced, possibly none, and records every date it could not satisfy in
// missing. Ordinary remote failures are logged and recorded rather than
// returned; a returned error is isolated to the unit.
type Fetcher interface {
	Fetch(ctx context.Context, unit WorkUnit, missing *MissingDates) ([]string, error)
}

// FetchFunc adapts a function to the Fetcher interface
type FetchFunc func(ctx context.Context, unit WorkUnit, missing *MissingDates) ([]string, error)

// Fetch implements Fetcher
func (f FetchFunc) Fetch(ctx context.Context, unit WorkUnit, missing *MissingDates) ([]string, error) {
	return f(ctx, unit, missing)
}

// MissingDates is a collector shared by concurrent fetch units
type MissingDates struct {
	mu    sync.Mutex
	dates []time.Time
}

// Add records dates that could not be fetched
func (m *MissingDates) Add(dates ...time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dates = append(m.dates, dates...)
}

// Dates returns the recorded dates in ascending order
func (m *MissingDates) Dates() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Clone(m.dates)
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })

	return out
}

// Len is the number of recorded dates
func (m *MissingDates) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.dates)
}

// DateRange is an inclusive start/end pair
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRanges pairs up start and end dates given as YYYY-MM-DD strings
func ParseDateRanges(starts, ends []string) ([]DateRange, error) {
	if len(starts) != len(ends) || len(starts) == 0 {
		return nil, fmt.Errorf("%w: %d start dates and %d end dates", ErrInvalidDateRange, len(starts), len(ends))
	}

	out := make([]DateRange, len(starts))

	for i := range starts {
		start, err := time.Parse(time.DateOnly, strings.TrimSpace(starts[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: start %q: %w", ErrInvalidDateRange, starts[i], err)
		}

		end, err := time.Parse(time.DateOnly, strings.TrimSpace(ends[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: end %q: %w", ErrInvalidDateRange, ends[i], err)
		}

		out[i] = DateRange{Start: start, End: end}
	}

	return out, nil
}

// State is the lifecycle position of a run
type State int32

// Run states
const (
	StateNew State = iota
	StatePlanning
	StateDispatching
	StateCollecting
	StateDone
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StatePlanning:
		return "PLANNING"
	case StateDispatching:
		return "DISPATCHING"
	case StateCollecting:
		return "COLLECTING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
