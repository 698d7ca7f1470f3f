package objstore

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/download"
	"github.com/geofetch/geofetch/pkg/location"
	"github.com/geofetch/geofetch/pkg/sources"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]string
	lists     []string
	downloads []string
	fail      map[string]bool
}

func (f *fakeStore) List(_ context.Context, _ string, prefix string) ([]Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lists = append(f.lists, prefix)

	var out []Object
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, Size: int64(len(v))})
		}
	}

	return out, nil
}

func (f *fakeStore) Download(_ context.Context, _ string, key, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.downloads = append(f.downloads, key)
	if f.fail[key] {
		return errors.New("access denied")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	return os.WriteFile(dest, []byte(f.objects[key]), 0o600)
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func testConfig() Config {
	return Config{
		Bucket:         "nsf-ncar-era5",
		PrefixTemplate: "e5.oper.an.pl/{{.year}}{{.month}}/",
		MatchTemplate:  "_{{.var.prefix}}.",
	}
}

func day(m time.Month, d int) time.Time {
	return time.Date(2020, m, d, 0, 0, 0, 0, time.UTC)
}

const (
	zJan1 = "e5.oper.an.pl/202001/e5.oper.an.pl.128_129_z.ll025sc.2020010100_2020010123.nc"
	zJan2 = "e5.oper.an.pl/202001/e5.oper.an.pl.128_129_z.ll025sc.2020010200_2020010223.nc"
	tJan1 = "e5.oper.an.pl/202001/e5.oper.an.pl.128_130_t.ll025sc.2020010100_2020010123.nc"
	zFeb1 = "e5.oper.an.pl/202002/e5.oper.an.pl.128_129_z.ll025sc.2020020100_2020020123.nc"
)

func TestCovers(t *testing.T) {
	assert.True(t, covers(zJan1, day(time.January, 1)))
	assert.False(t, covers(zJan1, day(time.January, 2)))
	assert.True(t, covers("monthly/e5.sfc.2020010100_2020013123.nc", day(time.January, 31)))
	assert.True(t, covers("static/land_sea_mask.nc", day(time.March, 3)))
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.Bucket = ""
	require.ErrorIs(t, cfg.Validate(), ErrBucketRequired)

	cfg = testConfig()
	cfg.PrefixTemplate = ""
	require.ErrorIs(t, cfg.Validate(), ErrPrefixRequired)
}

func TestSourceFetch(t *testing.T) {
	store := &fakeStore{objects: map[string]string{
		zJan1: "z-one",
		zJan2: "z-two",
		tJan1: "t-one",
		zFeb1: "z-feb",
	}}

	src, err := New(testLogger(), testConfig(), "era5", location.North(), store)
	require.NoError(t, err)

	slot := dataset.Slot{Prefix: "z", Name: "zg500", RootPath: t.TempDir()}
	dir := sources.DownloadDir(slot)

	// zJan2 is already on disk with the right size
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, path.Base(zJan2)), []byte("z-two"), 0o600))

	missing := &download.MissingDates{}
	paths, err := src.Fetch(context.Background(), download.WorkUnit{
		Slot:  slot,
		Dates: []time.Time{day(time.January, 1), day(time.January, 2), day(time.January, 3)},
	}, missing)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, path.Base(zJan1)),
		filepath.Join(dir, path.Base(zJan2)),
	}, paths)
	assert.Equal(t, []time.Time{day(time.January, 3)}, missing.Dates())
	assert.Equal(t, []string{zJan1}, store.downloads)
	assert.Equal(t, []string{"e5.oper.an.pl/202001/"}, store.lists)
}

func TestSourceFetchSizeMismatchRedownloads(t *testing.T) {
	store := &fakeStore{objects: map[string]string{zJan1: "complete"}}

	src, err := New(testLogger(), testConfig(), "era5", location.North(), store)
	require.NoError(t, err)

	slot := dataset.Slot{Prefix: "z", Name: "z", RootPath: t.TempDir()}
	dest := filepath.Join(sources.DownloadDir(slot), path.Base(zJan1))
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, []byte("part"), 0o600))

	paths, err := src.Fetch(context.Background(), download.WorkUnit{Slot: slot, Dates: []time.Time{day(time.January, 1)}}, &download.MissingDates{})
	require.NoError(t, err)
	assert.Equal(t, []string{dest}, paths)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "complete", string(data))
}

func TestSourceFetchCacheOnly(t *testing.T) {
	store := &fakeStore{objects: map[string]string{zJan1: "z-one", zJan2: "z-two"}}

	cfg := testConfig()
	cfg.CacheOnly = true

	src, err := New(testLogger(), cfg, "era5", location.North(), store)
	require.NoError(t, err)

	slot := dataset.Slot{Prefix: "z", Name: "z", RootPath: t.TempDir()}
	cached := filepath.Join(sources.DownloadDir(slot), path.Base(zJan1))
	require.NoError(t, os.MkdirAll(filepath.Dir(cached), 0o755))
	require.NoError(t, os.WriteFile(cached, []byte("z-one"), 0o600))

	missing := &download.MissingDates{}
	paths, err := src.Fetch(context.Background(), download.WorkUnit{
		Slot:  slot,
		Dates: []time.Time{day(time.January, 1), day(time.January, 2)},
	}, missing)
	require.NoError(t, err)

	assert.Equal(t, []string{cached}, paths)
	assert.Equal(t, []time.Time{day(time.January, 2)}, missing.Dates())
	assert.Empty(t, store.downloads)
}

func TestSourceFetchDownloadFailure(t *testing.T) {
	store := &fakeStore{
		objects: map[string]string{zJan1: "z-one"},
		fail:    map[string]bool{zJan1: true},
	}

	src, err := New(testLogger(), testConfig(), "era5", location.North(), store)
	require.NoError(t, err)

	missing := &download.MissingDates{}
	paths, err := src.Fetch(context.Background(), download.WorkUnit{
		Slot:  dataset.Slot{Prefix: "z", Name: "z", RootPath: t.TempDir()},
		Dates: []time.Time{day(time.January, 1)},
	}, missing)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Equal(t, 1, missing.Len())
}
