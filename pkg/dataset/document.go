package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DocumentData is the data section of a persisted configuration document
type DocumentData struct {
	Spec
	Files map[string][]string `json:"files"`
}

// Document is the persisted configuration of a catalog
type Document struct {
	Data           DocumentData `json:"data"`
	History        []string     `json:"history"`
	Implementation string       `json:"implementation"`
}

// ReadDocument loads a configuration document. A missing file is reported
// with an error wrapping os.ErrNotExist.
func ReadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is derived from dataset configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrConfig, path, err)
	}

	if doc.Data.Files == nil {
		doc.Data.Files = map[string][]string{}
	}

	return &doc, nil
}

// Persist writes the configuration document, merging the inventory with any
// document written since this catalog was loaded and appending a history line.
func (c *Catalog) Persist() (string, error) {
	path := c.ConfigPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	if existing, err := ReadDocument(path); err == nil {
		for name, paths := range existing.Data.Files {
			c.RecordProduced(name, paths...)
		}
	}

	c.history = append(c.history, fmt.Sprintf("Run at %s: %s",
		c.now().UTC().Format("Mon Jan _2 15:04:05 2006 MST"), strings.Join(c.argv, " ")))

	doc := Document{
		Data: DocumentData{
			Spec:  c.Spec(),
			Files: c.Inventory(),
		},
		History:        c.History(),
		Implementation: c.spec.Implementation,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary configuration: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to write configuration: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to write configuration: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to replace %s: %w", path, err)
	}

	c.log.WithField("path", path).Info("Saved dataset configuration")

	return path, nil
}

// Discover finds configuration documents directly beneath each dataset
// directory in basePath
func Discover(basePath string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(basePath, "*", "*.*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", basePath, err)
	}

	var out []string
	for _, m := range matches {
		identifier := filepath.Base(filepath.Dir(m))
		if strings.HasSuffix(filepath.Base(m), "."+identifier+".json") {
			out = append(out, m)
		}
	}

	return out, nil
}
