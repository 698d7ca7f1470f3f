package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// CopyTo re-identifies the dataset: every inventoried file is copied into
// the layout of a new identifier (and optionally base path) and a new
// Catalog pointing at the copies is returned. Nothing is persisted.
func (c *Catalog) CopyTo(identifier, basePath string) (*Catalog, error) {
	spec := c.Spec()
	spec.Identifier = identifier
	spec.Overwrite = true

	if basePath != "" {
		spec.BasePath = basePath
	}

	target, err := New(c.log, spec)
	if err != nil {
		return nil, err
	}

	if target.ConfigPath() == c.ConfigPath() {
		return nil, fmt.Errorf("%w: %s is already the location of this dataset", ErrConfig, c.ConfigPath())
	}

	for s, err := range target.Slots() {
		if err != nil {
			return nil, err
		}

		for _, src := range c.files[s.Name] {
			dst := filepath.Join(s.Path, filepath.Base(src))

			if err := copyFile(src, dst); err != nil {
				return nil, err
			}

			target.RecordProduced(s.Name, dst)
		}
	}

	target.history = c.History()

	c.log.WithFields(logrus.Fields{
		"target":    identifier,
		"base_path": spec.BasePath,
	}).Info("Copied dataset")

	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // inventory paths
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // derived from catalog layout
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}

	return nil
}
