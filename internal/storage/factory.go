package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/identity-service/identity-service/internal/config"
)

// ErrUnknownBackend is returned by NewStorage when storage.backend names a
// backend that no package registered
var ErrUnknownBackend = errors.New("unknown storage backend")

// FactoryFunc builds a backend from configuration
type FactoryFunc func(*config.Config) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register makes a backend available under name. Registering the same name
// twice panics.
func Register(name string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if factory == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("storage: Register called twice for backend " + name)
	}
	factories[name] = factory
}

// Backends returns the registered backend names in sorted order
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewStorage creates the backend selected by storage.backend
func NewStorage(cfg *config.Config) (Storage, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Storage.Backend]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownBackend, cfg.Storage.Backend, strings.Join(Backends(), ", "))
	}

	s, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s storage: %w", cfg.Storage.Backend, err)
	}
	return s, nil
}
