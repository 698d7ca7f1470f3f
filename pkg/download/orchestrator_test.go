package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/location"
	"github.com/geofetch/geofetch/pkg/ncdata"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newCatalog(t *testing.T, vars ...string) *dataset.Catalog {
	t.Helper()

	c, err := dataset.New(testLogger(), dataset.Spec{
		Identifier:    "test",
		BasePath:      t.TempDir(),
		Location:      location.South(),
		Frequency:     frequency.Day,
		OutputGroupBy: frequency.Year,
		VarNames:      vars,
	})
	require.NoError(t, err)

	return c
}

func monthlyConfig(ranges ...DateRange) Config {
	return Config{
		Workers:            4,
		RequestFrequency:   frequency.Month,
		SourceMinFrequency: frequency.Year,
		SourceMaxFrequency: frequency.Day,
		Ranges:             ranges,
	}
}

// recorder is a Fetcher that records the units it sees
type recorder struct {
	mu    sync.Mutex
	units []WorkUnit
	fn    func(WorkUnit, *MissingDates) ([]string, error)
}

func (r *recorder) Fetch(_ context.Context, u WorkUnit, missing *MissingDates) ([]string, error) {
	r.mu.Lock()
	r.units = append(r.units, u)
	r.mu.Unlock()

	if r.fn != nil {
		return r.fn(u, missing)
	}

	return []string{fmt.Sprintf("/out/%s/%s.nc", u.Slot.Name, u.Dates[0].Format("200601"))}, nil
}

func TestNewValidation(t *testing.T) {
	c := newCatalog(t, "tas")

	tests := []struct {
		name    string
		fetcher Fetcher
		cfg     Config
		wantErr error
	}{
		{name: "no fetcher", cfg: monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 1, 2)}), wantErr: ErrNoFetcher},
		{name: "no ranges", fetcher: &recorder{}, cfg: Config{Workers: 1}, wantErr: ErrInvalidDateRange},
		{name: "inverted range", fetcher: &recorder{}, cfg: monthlyConfig(DateRange{day(2020, 2, 1), day(2020, 1, 1)}), wantErr: ErrInvalidDateRange},
		{name: "negative workers", fetcher: &recorder{}, cfg: Config{Workers: -1, Ranges: []DateRange{{day(2020, 1, 1), day(2020, 1, 1)}}}, wantErr: ErrInvalidWorkers},
		{name: "inverted source range", fetcher: &recorder{}, cfg: Config{
			SourceMinFrequency: frequency.Day,
			SourceMaxFrequency: frequency.Year,
			Ranges:             []DateRange{{day(2020, 1, 1), day(2020, 1, 1)}},
		}, wantErr: ErrInvalidFrequencyRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testLogger(), c, tt.fetcher, tt.cfg)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequestFrequencyClamped(t *testing.T) {
	c := newCatalog(t, "tas")

	cfg := monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 1, 3)})
	cfg.RequestFrequency = frequency.Year
	cfg.SourceMinFrequency = frequency.Day
	cfg.SourceMaxFrequency = frequency.Day

	o, err := New(testLogger(), c, &recorder{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, frequency.Day, o.RequestFrequency())

	require.NoError(t, o.Run(context.Background()))
	// daily batching gives one unit per date
	assert.Len(t, o.Plan(), 3)
}

func TestDatesFromMultipleRanges(t *testing.T) {
	c := newCatalog(t, "tas")

	o, err := New(testLogger(), c, &recorder{}, monthlyConfig(
		DateRange{day(2020, 1, 30), day(2020, 2, 1)},
		DateRange{day(2020, 1, 1), day(2020, 1, 2)},
		DateRange{day(2020, 1, 31), day(2020, 1, 31)},
	))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		day(2020, 1, 1), day(2020, 1, 2), day(2020, 1, 30), day(2020, 1, 31), day(2020, 2, 1),
	}, o.Dates())
}

func TestRunBatchesByMonthAndSkipsExtant(t *testing.T) {
	c := newCatalog(t, "tas")

	s, _, err := c.SlotByName("tas")
	require.NoError(t, err)

	january := frequency.Day.Range(day(2020, 1, 1), day(2020, 1, 31))
	ds := ncdata.New(january)
	v := &ncdata.Variable{Name: "tas", Shape: []int{1}}
	for range january {
		v.Steps = append(v.Steps, []float64{273})
	}
	require.NoError(t, ds.AddVariable(v))
	require.NoError(t, ncdata.Write(c.PeriodPath(s, day(2020, 1, 1)), ds))

	rec := &recorder{}
	o, err := New(testLogger(), c, rec, monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 3, 10)}))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	plan := o.Plan()
	require.Len(t, plan, 2)
	assert.Equal(t, day(2020, 2, 1), plan[0].Dates[0])
	assert.Equal(t, day(2020, 2, 29), plan[0].Dates[len(plan[0].Dates)-1])
	assert.Equal(t, day(2020, 3, 1), plan[1].Dates[0])
	assert.Equal(t, day(2020, 3, 10), plan[1].Dates[len(plan[1].Dates)-1])

	assert.ElementsMatch(t, []string{"/out/tas/202002.nc", "/out/tas/202003.nc"}, o.FilesDownloaded())
	assert.Len(t, rec.units, 2)
	assert.Equal(t, StateDone, o.State())
}

func TestRunRefetchIncludesStoredDates(t *testing.T) {
	c := newCatalog(t, "tas")

	s, _, err := c.SlotByName("tas")
	require.NoError(t, err)

	stored := frequency.Day.Range(day(2020, 1, 1), day(2020, 1, 5))
	ds := ncdata.New(stored)
	v := &ncdata.Variable{Name: "tas", Shape: []int{1}}
	for range stored {
		v.Steps = append(v.Steps, []float64{273})
	}
	require.NoError(t, ds.AddVariable(v))
	require.NoError(t, ncdata.Write(c.PeriodPath(s, day(2020, 1, 1)), ds))

	cfg := monthlyConfig(DateRange{day(2020, 1, 4), day(2020, 1, 6)})

	o, err := New(testLogger(), c, &recorder{}, cfg)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))
	require.Len(t, o.Plan(), 1)
	assert.ElementsMatch(t, []time.Time{day(2020, 1, 6)}, o.Plan()[0].Dates)

	cfg.Refetch = true

	o, err = New(testLogger(), c, &recorder{}, cfg)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))
	require.Len(t, o.Plan(), 1)
	assert.ElementsMatch(t, []time.Time{day(2020, 1, 4), day(2020, 1, 5), day(2020, 1, 6)}, o.Plan()[0].Dates)
}

func TestRunIsolatesFailures(t *testing.T) {
	c := newCatalog(t, "a", "b", "c", "d")

	rec := &recorder{fn: func(u WorkUnit, missing *MissingDates) ([]string, error) {
		switch u.Slot.Name {
		case "b":
			return nil, errors.New("remote exploded")
		case "c":
			panic("nil map somewhere")
		case "d":
			missing.Add(u.Dates...)
			return nil, nil
		}
		return []string{"/out/" + u.Slot.Name + ".nc"}, nil
	}}

	o, err := New(testLogger(), c, rec, monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 1, 3)}))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, []string{"/out/a.nc"}, o.FilesDownloaded())
	assert.Equal(t, 2, o.Failures())
	assert.Equal(t, []time.Time{day(2020, 1, 1), day(2020, 1, 2), day(2020, 1, 3)}, o.MissingDates())
	assert.Len(t, rec.units, 4)
}

func TestRunDeduplicatesFiles(t *testing.T) {
	c := newCatalog(t, "tas")

	rec := &recorder{fn: func(_ WorkUnit, _ *MissingDates) ([]string, error) {
		return []string{"/out/shared.nc", "/out/shared.nc"}, nil
	}}

	o, err := New(testLogger(), c, rec, monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 3, 1)}))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Len(t, o.Plan(), 3)
	assert.Equal(t, []string{"/out/shared.nc"}, o.FilesDownloaded())
}

func TestFilesBySlot(t *testing.T) {
	c := newCatalog(t, "tas", "uas")

	o, err := New(testLogger(), c, &recorder{}, monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 2, 10)}))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	bySlot := o.FilesBySlot()
	assert.Equal(t, []string{"/out/tas/202001.nc", "/out/tas/202002.nc"}, bySlot["tas"])
	assert.Equal(t, []string{"/out/uas/202001.nc", "/out/uas/202002.nc"}, bySlot["uas"])
}

func TestRunBoundsConcurrency(t *testing.T) {
	c := newCatalog(t, "tas")

	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)

	rec := &recorder{fn: func(u WorkUnit, _ *MissingDates) ([]string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)

		return []string{u.String()}, nil
	}}

	cfg := monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 12, 31)})
	cfg.Workers = 3

	o, err := New(testLogger(), c, rec, cfg)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Len(t, o.FilesDownloaded(), 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestDryRun(t *testing.T) {
	c := newCatalog(t, "tas", "pr")

	rec := &recorder{}
	cfg := monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 2, 15)})
	cfg.DryRun = true

	o, err := New(testLogger(), c, rec, cfg)
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Len(t, o.Plan(), 4)
	assert.Empty(t, rec.units)
	assert.Empty(t, o.FilesDownloaded())
}

func TestRunIsSingleUse(t *testing.T) {
	c := newCatalog(t, "tas")

	o, err := New(testLogger(), c, &recorder{}, monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 1, 1)}))
	require.NoError(t, err)
	assert.Equal(t, StateNew, o.State())
	assert.NotEmpty(t, o.RunID())

	require.NoError(t, o.Run(context.Background()))
	require.ErrorIs(t, o.Run(context.Background()), ErrRunAlreadyStarted)
}

func TestRunNothingToDo(t *testing.T) {
	c := newCatalog(t, "tas")

	s, _, err := c.SlotByName("tas")
	require.NoError(t, err)

	ds := ncdata.New([]time.Time{day(2020, 1, 1)})
	require.NoError(t, ds.AddVariable(&ncdata.Variable{Name: "tas", Shape: []int{1}, Steps: [][]float64{{1}}}))
	require.NoError(t, ncdata.Write(filepath.Join(s.Path, "2020.nc"), ds))

	rec := &recorder{}
	o, err := New(testLogger(), c, rec, monthlyConfig(DateRange{day(2020, 1, 1), day(2020, 1, 1)}))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	assert.Empty(t, o.Plan())
	assert.Empty(t, rec.units)
}

func TestParseDateRanges(t *testing.T) {
	ranges, err := ParseDateRanges([]string{"2020-01-01", "2021-06-01"}, []string{"2020-01-31", "2021-06-30"})
	require.NoError(t, err)
	assert.Equal(t, []DateRange{
		{Start: day(2020, 1, 1), End: day(2020, 1, 31)},
		{Start: day(2021, 6, 1), End: day(2021, 6, 30)},
	}, ranges)

	_, err = ParseDateRanges([]string{"2020-01-01"}, nil)
	require.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = ParseDateRanges([]string{"01/01/2020"}, []string{"2020-01-02"})
	require.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PLANNING", StatePlanning.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "State(9)", State(9).String())
}
