package instance

import "sync"

var (
	defaultMu       sync.RWMutex
	defaultRegistry = NewRegistry()
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}

// SetDefaultRegistry replaces the process-wide registry. Tests use this to
// swap in an isolated registry.
func SetDefaultRegistry(r *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = r
}

// Define adds an instance to the process-wide registry.
func Define(inst Instance) error { return Default().Define(inst) }

// DefineAlias registers an alias in the process-wide registry.
func DefineAlias(alias, target string) error { return Default().DefineAlias(alias, target) }

// Select switches the current instance of the process-wide registry.
func Select(token string) (*Instance, error) { return Default().Select(token) }

// Current returns the current instance of the process-wide registry.
func Current() (*Instance, error) { return Default().Current() }

// Reset clears the current selection of the process-wide registry.
func Reset() { Default().Reset() }
