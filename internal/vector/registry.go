package vector

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Driver opens and creates datasets of one format.
type Driver interface {
	// Name is the format name used by Options.Format, e.g. "GeoJSON".
	Name() string
	// Extensions lists lower-case file extensions without dot.
	Extensions() []string
	Open(path string, update bool) (Dataset, error)
	Create(path string, options map[string]string) (Dataset, error)
}

// Compile-time registration via init() in each driver package.
var (
	registryMu sync.RWMutex
	registry   = map[string]Driver{}
)

// Register makes a driver available by name. Called from init() in each
// driver package.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(d.Name())] = d
}

// Lookup returns a registered driver by case-insensitive name.
func Lookup(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown format: %q", name)
	}
	return d, nil
}

// ForPath returns the driver registered for the extension of path.
func ForPath(path string) (Driver, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, name := range sortedNames() {
		d := registry[name]
		for _, e := range d.Extensions() {
			if e == ext {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("no format registered for %q", path)
}

// Drivers returns the names of all registered drivers, sorted.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for _, name := range sortedNames() {
		names = append(names, registry[name].Name())
	}
	return names
}

func sortedNames() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Open opens path with the named format, or with the format matching its
// extension when format is empty.
func Open(path, format string, update bool) (Dataset, error) {
	d, err := driverFor(path, format)
	if err != nil {
		return nil, err
	}
	return d.Open(path, update)
}

// Create creates a dataset at path with the named format, or with the format
// matching its extension when format is empty.
func Create(path, format string, options map[string]string) (Dataset, error) {
	d, err := driverFor(path, format)
	if err != nil {
		return nil, err
	}
	return d.Create(path, options)
}

func driverFor(path, format string) (Driver, error) {
	if format != "" {
		return Lookup(format)
	}
	return ForPath(path)
}
