package consolidate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
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

func newCatalog(t *testing.T, overwrite bool) *dataset.Catalog {
	t.Helper()

	c, err := dataset.New(testLogger(), dataset.Spec{
		Identifier:    "osisaf",
		BasePath:      t.TempDir(),
		Location:      location.North(),
		Frequency:     frequency.Day,
		OutputGroupBy: frequency.Year,
		VarNames:      []string{"siconca"},
		Overwrite:     overwrite,
	})
	require.NoError(t, err)

	return c
}

// series builds a single-cell dataset with one value per timestamp
func series(t *testing.T, name string, points map[time.Time]float64, order ...time.Time) *ncdata.Dataset {
	t.Helper()

	ds := ncdata.New(order)
	v := &ncdata.Variable{Name: name, Dims: []string{"time", "cell"}, Shape: []int{1}}
	for _, ts := range order {
		v.Steps = append(v.Steps, []float64{points[ts]})
	}
	require.NoError(t, ds.AddVariable(v))

	return ds
}

func values(t *testing.T, path, name string) ([]time.Time, []float64) {
	t.Helper()

	ds, err := ncdata.Open(path)
	require.NoError(t, err)

	v, ok := ds.Variable(name)
	require.True(t, ok)

	out := make([]float64, len(v.Steps))
	for i, s := range v.Steps {
		out[i] = s[0]
	}

	return ds.Times, out
}

func TestConsolidateMergePolicies(t *testing.T) {
	tests := []struct {
		name    string
		policy  MergePolicy
		wantJan float64
	}{
		{name: "prefer existing keeps stored value", policy: PreferExisting, wantJan: 2},
		{name: "prefer incoming takes new value", policy: PreferIncoming, wantJan: 20},
		{name: "empty policy defaults to prefer existing", policy: "", wantJan: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCatalog(t, false)
			cons := New(testLogger(), c, Options{Policy: tt.policy})

			first := series(t, "siconca",
				map[time.Time]float64{day(2020, 1, 1): 1, day(2020, 1, 2): 2},
				day(2020, 1, 1), day(2020, 1, 2))

			res, err := cons.Consolidate(Input{Dataset: first})
			require.NoError(t, err)
			require.Len(t, res.Written, 1)
			assert.Empty(t, res.Merged)

			second := series(t, "siconca",
				map[time.Time]float64{day(2020, 1, 2): 20, day(2020, 1, 3): 30},
				day(2020, 1, 3), day(2020, 1, 2))

			res, err = cons.Consolidate(Input{Dataset: second})
			require.NoError(t, err)
			require.Len(t, res.Merged, 1)

			times, vals := values(t, res.Merged[0], "siconca")
			assert.Equal(t, []time.Time{day(2020, 1, 1), day(2020, 1, 2), day(2020, 1, 3)}, times)
			assert.Equal(t, []float64{1, tt.wantJan, 30}, vals)

			assert.Equal(t, res.Merged, c.Files("siconca"))

			// only the canonical file remains in the slot directory
			entries, err := filepath.Glob(filepath.Join(filepath.Dir(res.Merged[0]), "*"))
			require.NoError(t, err)
			assert.Equal(t, res.Merged, entries)
			hidden, err := filepath.Glob(filepath.Join(filepath.Dir(res.Merged[0]), ".*"))
			require.NoError(t, err)
			assert.Empty(t, hidden)
		})
	}
}

func TestConsolidateResamplesAndGroups(t *testing.T) {
	c := newCatalog(t, false)
	cons := New(testLogger(), c, Options{})

	t1 := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2020, 12, 31, 12, 0, 0, 0, time.UTC)
	t3 := time.Date(2021, 1, 1, 6, 0, 0, 0, time.UTC)

	ds := series(t, "siconca", map[time.Time]float64{t1: 10, t2: 20, t3: 5}, t1, t2, t3)

	res, err := cons.Consolidate(Input{Dataset: ds})
	require.NoError(t, err)
	require.Len(t, res.Written, 2)

	times, vals := values(t, res.Written[0], "siconca")
	assert.Equal(t, []time.Time{day(2020, 12, 31)}, times)
	assert.Equal(t, []float64{15}, vals)
	assert.Equal(t, "2020.nc", filepath.Base(res.Written[0]))

	times, vals = values(t, res.Written[1], "siconca")
	assert.Equal(t, []time.Time{day(2021, 1, 1)}, times)
	assert.Equal(t, []float64{5}, vals)
	assert.Equal(t, "2021.nc", filepath.Base(res.Written[1]))
}

func TestConsolidateFromPaths(t *testing.T) {
	c := newCatalog(t, false)
	cons := New(testLogger(), c, Options{DeleteSources: true})

	raw := filepath.Join(t.TempDir(), "ice_conc_20200101.nc")
	ds := series(t, "ice_conc", map[time.Time]float64{day(2020, 1, 1): 0.5}, day(2020, 1, 1))
	ds.Variables = append(ds.Variables, &ncdata.Variable{
		Name:  "status_flag",
		Dims:  []string{"time", "cell"},
		Shape: []int{1},
		Steps: [][]float64{{1}},
	})
	require.NoError(t, ncdata.Write(raw, ds))

	res, err := cons.Consolidate(Input{
		Paths:  []string{raw},
		Rename: map[string]string{"ice_conc": "siconca"},
		Drop:   []string{"status_flag"},
	})
	require.NoError(t, err)

	require.Len(t, res.Written, 1)
	assert.Empty(t, res.Skipped)
	assert.NoFileExists(t, raw)
	assert.FileExists(t, res.Config)

	doc, err := dataset.ReadDocument(res.Config)
	require.NoError(t, err)
	assert.Equal(t, res.Written, doc.Data.Files["siconca"])
}

func TestConsolidateSkipPersist(t *testing.T) {
	c := newCatalog(t, true)
	cons := New(testLogger(), c, Options{SkipPersist: true})

	ds := series(t, "siconca", map[time.Time]float64{day(2020, 1, 1): 1}, day(2020, 1, 1))

	res, err := cons.Consolidate(Input{Dataset: ds})
	require.NoError(t, err)
	require.Len(t, res.Written, 1)
	assert.Empty(t, res.Config)
	assert.NoFileExists(t, c.ConfigPath())
	assert.Equal(t, res.Written, c.Inventory()["siconca"])

	res, err = cons.Consolidate(Input{})
	require.NoError(t, err)
	assert.Empty(t, res.Config)
	assert.NoFileExists(t, c.ConfigPath())
}

func TestConsolidateSkipsUnknownVariables(t *testing.T) {
	c := newCatalog(t, false)
	cons := New(testLogger(), c, Options{})

	ds := series(t, "mystery", map[time.Time]float64{day(2020, 1, 1): 1}, day(2020, 1, 1))

	res, err := cons.Consolidate(Input{Dataset: ds})
	require.NoError(t, err)
	assert.Equal(t, []string{"mystery"}, res.Skipped)
	assert.Empty(t, res.Written)
	assert.FileExists(t, res.Config)
}

func TestConsolidateTimeOverride(t *testing.T) {
	c := newCatalog(t, false)
	cons := New(testLogger(), c, Options{})

	raw := filepath.Join(t.TempDir(), "no_time.nc")
	cw, err := cdf.OpenWriter(raw)
	require.NoError(t, err)
	attrs, err := util.NewOrderedMap([]string{}, map[string]any{})
	require.NoError(t, err)
	require.NoError(t, cw.AddVar("siconca", api.Variable{
		Values:     [][]float64{{0.1, 0.2}, {0.3, 0.4}},
		Dimensions: []string{"y", "x"},
		Attributes: attrs,
	}))
	require.NoError(t, cw.Close())

	_, err = cons.Consolidate(Input{Paths: []string{raw}})
	require.ErrorIs(t, err, ncdata.ErrDataSet)
	require.ErrorIs(t, err, ncdata.ErrNoTimeAxis)

	stamp := day(2020, 6, 1)
	res, err := cons.Consolidate(Input{Paths: []string{raw}, Time: &stamp})
	require.NoError(t, err)
	require.Len(t, res.Written, 1)

	times, _ := values(t, res.Written[0], "siconca")
	assert.Equal(t, []time.Time{stamp}, times)
}

func TestConsolidateInputRules(t *testing.T) {
	t.Run("paths and dataset together", func(t *testing.T) {
		cons := New(testLogger(), newCatalog(t, false), Options{})
		_, err := cons.Consolidate(Input{Paths: []string{"a.nc"}, Dataset: ncdata.New(nil)})
		require.ErrorIs(t, err, ErrConflictingInput)
	})

	t.Run("no input without overwrite leaves config alone", func(t *testing.T) {
		c := newCatalog(t, false)
		res, err := New(testLogger(), c, Options{}).Consolidate(Input{})
		require.NoError(t, err)
		assert.Empty(t, res.Config)
		assert.NoFileExists(t, c.ConfigPath())
	})

	t.Run("no input with overwrite persists", func(t *testing.T) {
		c := newCatalog(t, true)
		res, err := New(testLogger(), c, Options{}).Consolidate(Input{})
		require.NoError(t, err)
		assert.Equal(t, c.ConfigPath(), res.Config)
		assert.FileExists(t, c.ConfigPath())
	})

	t.Run("unreadable input", func(t *testing.T) {
		cons := New(testLogger(), newCatalog(t, false), Options{})
		_, err := cons.Consolidate(Input{Paths: []string{filepath.Join(t.TempDir(), "missing.nc")}})
		require.ErrorIs(t, err, ncdata.ErrDataSet)
	})
}

func TestParseMergePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    MergePolicy
		wantErr bool
	}{
		{input: "", want: PreferExisting},
		{input: "prefer-existing", want: PreferExisting},
		{input: "PREFER-INCOMING", want: PreferIncoming},
		{input: "newest", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMergePolicy(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownMergePolicy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
