package dataset

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Factory rebuilds a catalog from its persisted description
type Factory func(log logrus.FieldLogger, spec Spec) (*Catalog, error)

//nolint:gochecknoglobals // implementation registry
var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		DefaultImplementation: New,
	}
)

// Register associates an implementation name with a factory. Sources that
// need to adjust a reloaded spec register their own name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[name] = factory
}

// Implementations lists the registered implementation names
func Implementations() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Open reloads a catalog from a configuration document using the factory
// registered for its implementation
func Open(log logrus.FieldLogger, path string) (*Catalog, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}

	registryMu.RLock()
	factory, ok := registry[doc.Implementation]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrConfig, ErrUnknownImplementation, doc.Implementation)
	}

	spec := doc.Data.Spec
	spec.Implementation = doc.Implementation

	return factory(log, spec)
}
