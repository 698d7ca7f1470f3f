package ftpsrc

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
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

var errBroken = errors.New("connection reset")

type fakeServer struct {
	mu        sync.Mutex
	files     map[string]string
	lists     int
	dials     int
	quits     int
	failRetr  map[string]bool
	failLists bool
}

func (f *fakeServer) dial(_ context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++

	return &fakeConn{srv: f}, nil
}

type fakeConn struct {
	srv *fakeServer
}

func (c *fakeConn) NameList(dir string) ([]string, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	c.srv.lists++
	if c.srv.failLists {
		return nil, errBroken
	}

	var out []string
	for p := range c.srv.files {
		if path.Dir(p) == path.Clean(dir) {
			out = append(out, p)
		}
	}

	return out, nil
}

func (c *fakeConn) Retrieve(p string, w io.Writer) error {
	c.srv.mu.Lock()
	content, ok := c.srv.files[p]
	fail := c.srv.failRetr[p]
	c.srv.mu.Unlock()

	if !ok || fail {
		return errBroken
	}

	_, err := io.WriteString(w, content)

	return err
}

func (c *fakeConn) Quit() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	c.srv.quits++

	return nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func testConfig() Config {
	return Config{
		Host:         "osisaf.example",
		Port:         21,
		DirTemplate:  "/reprocessed/ice/conc/v2p0/{{.year}}/{{.month}}/",
		FileTemplate: "ice_conc_{{.region.hemisphere}}_ease2-250_icdr-v2p0_{{.ymd}}1200.nc",
	}
}

func jan(d int) time.Time {
	return time.Date(2021, time.January, d, 0, 0, 0, 0, time.UTC)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no host", mutate: func(c *Config) { c.Host = "" }, wantErr: ErrHostRequired},
		{name: "no file template", mutate: func(c *Config) { c.FileTemplate = "" }, wantErr: ErrTemplateRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	cfg := testConfig()
	cfg.InvalidDates = []string{"2021-13-01"}
	require.Error(t, cfg.Validate())
}

func TestSourceFetch(t *testing.T) {
	srv := &fakeServer{
		files: map[string]string{
			"/reprocessed/ice/conc/v2p0/2021/01/ice_conc_nh_ease2-250_icdr-v2p0_202101011200.nc": "one",
			"/reprocessed/ice/conc/v2p0/2021/01/ice_conc_nh_ease2-250_icdr-v2p0_202101031200.nc": "three",
		},
	}

	cfg := testConfig()
	cfg.InvalidDates = []string{"2021-01-04"}

	src, err := New(testLogger(), cfg, "osisaf", location.North(), srv.dial, 2)
	require.NoError(t, err)
	defer src.Close()

	slot := dataset.Slot{Prefix: "siconca", Name: "siconca", RootPath: t.TempDir()}
	missing := &download.MissingDates{}

	paths, err := src.Fetch(context.Background(), download.WorkUnit{
		Slot:  slot,
		Dates: []time.Time{jan(1), jan(2), jan(3), jan(4)},
	}, missing)
	require.NoError(t, err)

	dir := sources.DownloadDir(slot)
	assert.Equal(t, []string{
		filepath.Join(dir, "ice_conc_nh_ease2-250_icdr-v2p0_202101011200.nc"),
		filepath.Join(dir, "ice_conc_nh_ease2-250_icdr-v2p0_202101031200.nc"),
	}, paths)
	assert.Equal(t, []time.Time{jan(2)}, missing.Dates())

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "three", string(data))

	// the directory listing is cached and the session reused
	assert.Equal(t, 1, srv.lists)
	assert.Equal(t, 1, srv.dials)

	// a second pass finds everything on disk
	again, err := src.Fetch(context.Background(), download.WorkUnit{Slot: slot, Dates: []time.Time{jan(1), jan(3)}}, &download.MissingDates{})
	require.NoError(t, err)
	assert.Equal(t, paths, again)
	assert.Equal(t, 1, srv.dials)
}

func TestSourceFetchRejectsYearBoundary(t *testing.T) {
	srv := &fakeServer{files: map[string]string{}}

	src, err := New(testLogger(), testConfig(), "osisaf", location.North(), srv.dial, 1)
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), download.WorkUnit{
		Slot:  dataset.Slot{Name: "siconca", RootPath: t.TempDir()},
		Dates: []time.Time{time.Date(2020, time.December, 31, 0, 0, 0, 0, time.UTC), jan(1)},
	}, &download.MissingDates{})
	require.ErrorIs(t, err, sources.ErrBatchSpansYears)
	assert.Zero(t, srv.dials)
}

func TestSourceFetchBrokenSession(t *testing.T) {
	remote := "/reprocessed/ice/conc/v2p0/2021/01/ice_conc_sh_ease2-250_icdr-v2p0_202101011200.nc"
	srv := &fakeServer{
		files:    map[string]string{remote: "x"},
		failRetr: map[string]bool{remote: true},
	}

	src, err := New(testLogger(), testConfig(), "osisaf", location.South(), srv.dial, 1)
	require.NoError(t, err)

	missing := &download.MissingDates{}
	paths, err := src.Fetch(context.Background(), download.WorkUnit{
		Slot:  dataset.Slot{Name: "siconca", RootPath: t.TempDir()},
		Dates: []time.Time{jan(1), jan(2)},
	}, missing)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Equal(t, []time.Time{jan(1), jan(2)}, missing.Dates())

	// the failed session is discarded rather than pooled
	assert.Equal(t, 1, srv.quits)
}

func TestSourceFetchBrokenSessionSettlesRemainingDates(t *testing.T) {
	remote := "/reprocessed/ice/conc/v2p0/2021/01/ice_conc_nh_ease2-250_icdr-v2p0_202101011200.nc"
	srv := &fakeServer{
		files:    map[string]string{remote: "x"},
		failRetr: map[string]bool{remote: true},
	}

	cfg := testConfig()
	cfg.InvalidDates = []string{"2021-01-03"}

	src, err := New(testLogger(), cfg, "osisaf", location.North(), srv.dial, 1)
	require.NoError(t, err)

	slot := dataset.Slot{Name: "siconca", RootPath: t.TempDir()}

	existing := filepath.Join(sources.DownloadDir(slot), "ice_conc_nh_ease2-250_icdr-v2p0_202101041200.nc")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("four"), 0o600))

	missing := &download.MissingDates{}
	paths, err := src.Fetch(context.Background(), download.WorkUnit{
		Slot:  slot,
		Dates: []time.Time{jan(1), jan(2), jan(3), jan(4)},
	}, missing)
	require.NoError(t, err)

	assert.Equal(t, []string{existing}, paths)
	assert.Equal(t, []time.Time{jan(1), jan(2)}, missing.Dates())
}

func TestSourceFetchListingFailure(t *testing.T) {
	srv := &fakeServer{files: map[string]string{}, failLists: true}

	src, err := New(testLogger(), testConfig(), "osisaf", location.North(), srv.dial, 1)
	require.NoError(t, err)

	missing := &download.MissingDates{}
	_, err = src.Fetch(context.Background(), download.WorkUnit{
		Slot:  dataset.Slot{Name: "siconca", RootPath: t.TempDir()},
		Dates: []time.Time{jan(5)},
	}, missing)
	require.NoError(t, err)
	assert.Equal(t, 1, missing.Len())
}

func TestPoolReuseAndClose(t *testing.T) {
	srv := &fakeServer{}
	p := newPool(testLogger(), srv.dial, 1)

	a, err := p.get(context.Background())
	require.NoError(t, err)
	b, err := p.get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, srv.dials)

	p.put(a)
	p.put(b) // pool full, closed immediately
	assert.Equal(t, 1, srv.quits)

	c, err := p.get(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, c)

	p.put(c)
	p.close()
	assert.Equal(t, 2, srv.quits)

	p.put(b)
	assert.Equal(t, 3, srv.quits)
}

func TestOSISAFInvalidDays(t *testing.T) {
	north := OSISAFInvalidDays(location.North())
	assert.Contains(t, north, "1979-05-21")
	assert.Contains(t, north, "1979-06-04")
	assert.Contains(t, north, "2022-11-09")
	assert.NotContains(t, north, "1979-06-05")

	south := OSISAFInvalidDays(location.South())
	assert.Contains(t, south, "1986-07-02")
	assert.NotContains(t, south, "1979-06-10")
}
