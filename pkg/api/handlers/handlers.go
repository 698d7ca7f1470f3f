// Package handlers implements the request handlers for the geofetch API.
package handlers

import (
	"path/filepath"
	"slices"
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/geofetch/geofetch/pkg/dataset"
	"github.com/geofetch/geofetch/pkg/frequency"
	"github.com/geofetch/geofetch/pkg/location"
)

// DatasetSummary is the listing representation of a dataset
type DatasetSummary struct {
	Identifier     string              `json:"identifier"`
	Implementation string              `json:"implementation"`
	Location       location.Region     `json:"location"`
	Frequency      frequency.Frequency `json:"frequency"`
	OutputGroupBy  frequency.Frequency `json:"output_group_by"`
	Variables      []string            `json:"variables"`
	FileCount      int                 `json:"file_count"`
}

// DatasetDetail adds the per-variable inventory and run history
type DatasetDetail struct {
	DatasetSummary
	Levels  []dataset.LevelSet  `json:"levels"`
	History []string            `json:"history"`
	Files   map[string][]string `json:"files"`
}

// FilesResponse lists produced files, optionally for a single variable
type FilesResponse struct {
	Identifier string              `json:"identifier"`
	Files      map[string][]string `json:"files"`
}

// Server serves dataset documents found beneath a base path
type Server struct {
	basePath string
	log      logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(basePath string, log logrus.FieldLogger) *Server {
	return &Server{
		basePath: basePath,
		log:      log.WithField("component", "api.handlers"),
	}
}

// Register mounts the dataset routes on router
func (s *Server) Register(router fiber.Router) {
	router.Get("/datasets", s.ListDatasets)
	router.Get("/datasets/:identifier", s.GetDataset)
	router.Get("/datasets/:identifier/files", s.ListFiles)
}

// Health reports liveness
func (s *Server) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListDatasets returns a summary of every discovered dataset, sorted by identifier
func (s *Server) ListDatasets(c fiber.Ctx) error {
	paths, err := dataset.Discover(s.basePath)
	if err != nil {
		s.log.WithError(err).Error("Failed to discover datasets")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to discover datasets")
	}

	out := make([]DatasetSummary, 0, len(paths))

	for _, path := range paths {
		doc, err := dataset.ReadDocument(path)
		if err != nil {
			s.log.WithError(err).WithField("path", path).Warn("Skipping unreadable dataset configuration")
			continue
		}

		out = append(out, summarize(doc))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })

	return c.JSON(fiber.Map{"datasets": out, "total": len(out)})
}

// GetDataset returns one dataset's configuration, inventory and history
func (s *Server) GetDataset(c fiber.Ctx) error {
	doc, err := s.lookup(c.Params("identifier"))
	if err != nil {
		return err
	}

	return c.JSON(DatasetDetail{
		DatasetSummary: summarize(doc),
		Levels:         doc.Data.Levels,
		History:        doc.History,
		Files:          doc.Data.Files,
	})
}

// ListFiles returns produced files. The variable query parameter restricts
// the result to one inventory key.
func (s *Server) ListFiles(c fiber.Ctx) error {
	identifier := c.Params("identifier")

	doc, err := s.lookup(identifier)
	if err != nil {
		return err
	}

	files := doc.Data.Files
	if name := c.Query("variable"); name != "" {
		paths, ok := files[name]
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "variable not found")
		}

		files = map[string][]string{name: paths}
	}

	return c.JSON(FilesResponse{Identifier: identifier, Files: files})
}

func (s *Server) lookup(identifier string) (*dataset.Document, error) {
	paths, err := dataset.Discover(s.basePath)
	if err != nil {
		s.log.WithError(err).Error("Failed to discover datasets")
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to discover datasets")
	}

	idx := slices.IndexFunc(paths, func(p string) bool {
		return filepath.Base(filepath.Dir(p)) == identifier
	})
	if idx < 0 {
		return nil, ErrDatasetNotFound
	}

	doc, err := dataset.ReadDocument(paths[idx])
	if err != nil {
		s.log.WithError(err).WithField("path", paths[idx]).Error("Failed to read dataset configuration")
		return nil, ErrDatasetUnreadable
	}

	return doc, nil
}

func summarize(doc *dataset.Document) DatasetSummary {
	count := 0
	for _, paths := range doc.Data.Files {
		count += len(paths)
	}

	return DatasetSummary{
		Identifier:     doc.Data.Identifier,
		Implementation: doc.Implementation,
		Location:       doc.Data.Location,
		Frequency:      doc.Data.Frequency,
		OutputGroupBy:  doc.Data.OutputGroupBy,
		Variables:      doc.Data.VarNames,
		FileCount:      count,
	}
}
