package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/location"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// seed persists two datasets beneath a fresh base path
func seed(t *testing.T) string {
	t.Helper()

	base := t.TempDir()

	osisaf, err := dataset.New(testLogger(), dataset.Spec{
		Identifier:    "osisaf",
		BasePath:      base,
		Location:      location.North(),
		Frequency:     frequency.Day,
		OutputGroupBy: frequency.Year,
		VarNames:      []string{"siconca"},
	})
	require.NoError(t, err)
	osisaf.RecordProduced("siconca", "/data/osisaf/day/north/siconca/2020.nc", "/data/osisaf/day/north/siconca/2021.nc")
	_, err = osisaf.Persist()
	require.NoError(t, err)

	era5, err := dataset.New(testLogger(), dataset.Spec{
		Identifier:    "era5",
		BasePath:      base,
		Location:      location.South(),
		Frequency:     frequency.Month,
		OutputGroupBy: frequency.Year,
		VarNames:      []string{"tas", "zg"},
		Levels:        []dataset.LevelSet{{}, {500, 250}},
	})
	require.NoError(t, err)
	era5.RecordProduced("zg500", "/data/era5/mon/south/zg500/2020.nc")
	_, err = era5.Persist()
	require.NoError(t, err)

	return base
}

func newTestApp(basePath string) *fiber.App {
	app := fiber.New()
	server := NewServer(basePath, testLogger())
	app.Get("/health", server.Health)
	server.Register(app.Group("/api/v1"))

	return app
}

func get(t *testing.T, app *fiber.App, target string, dest any) int {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, http.NoBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	if dest != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, dest))
	}

	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	app := newTestApp(t.TempDir())

	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, app, "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListDatasets(t *testing.T) {
	app := newTestApp(seed(t))

	var body struct {
		Datasets []DatasetSummary `json:"datasets"`
		Total    int              `json:"total"`
	}
	require.Equal(t, http.StatusOK, get(t, app, "/api/v1/datasets", &body))

	require.Equal(t, 2, body.Total)
	assert.Equal(t, "era5", body.Datasets[0].Identifier)
	assert.Equal(t, "osisaf", body.Datasets[1].Identifier)
	assert.Equal(t, 2, body.Datasets[1].FileCount)
	assert.Equal(t, []string{"tas", "zg"}, body.Datasets[0].Variables)
	assert.Equal(t, frequency.Month, body.Datasets[0].Frequency)
	assert.True(t, body.Datasets[0].Location.IsSouth())
}

func TestListDatasetsSkipsCorruptDocuments(t *testing.T) {
	base := seed(t)

	dir := filepath.Join(base, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataset_config.broken.json"), []byte("{"), 0o600))

	app := newTestApp(base)

	var body struct {
		Total int `json:"total"`
	}
	require.Equal(t, http.StatusOK, get(t, app, "/api/v1/datasets", &body))
	assert.Equal(t, 2, body.Total)

	assert.Equal(t, http.StatusInternalServerError, get(t, app, "/api/v1/datasets/broken", nil))
}

func TestGetDataset(t *testing.T) {
	app := newTestApp(seed(t))

	var detail DatasetDetail
	require.Equal(t, http.StatusOK, get(t, app, "/api/v1/datasets/era5", &detail))

	assert.Equal(t, "era5", detail.Identifier)
	assert.Equal(t, dataset.DefaultImplementation, detail.Implementation)
	require.Len(t, detail.Levels, 2)
	assert.Equal(t, dataset.LevelSet{500, 250}, detail.Levels[1])
	assert.Len(t, detail.History, 1)
	assert.Contains(t, detail.Files, "zg500")

	assert.Equal(t, http.StatusNotFound, get(t, app, "/api/v1/datasets/missing", nil))
}

func TestListFiles(t *testing.T) {
	app := newTestApp(seed(t))

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantKeys   []string
	}{
		{name: "all variables", target: "/api/v1/datasets/osisaf/files", wantStatus: http.StatusOK, wantKeys: []string{"siconca"}},
		{name: "one variable", target: "/api/v1/datasets/era5/files?variable=zg500", wantStatus: http.StatusOK, wantKeys: []string{"zg500"}},
		{name: "unknown variable", target: "/api/v1/datasets/era5/files?variable=zg850", wantStatus: http.StatusNotFound},
		{name: "unknown dataset", target: "/api/v1/datasets/cmip6/files", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body FilesResponse
			require.Equal(t, tt.wantStatus, get(t, app, tt.target, &body))

			if tt.wantStatus != http.StatusOK {
				return
			}

			keys := make([]string, 0, len(body.Files))
			for k := range body.Files {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantKeys, keys)
		})
	}
}
