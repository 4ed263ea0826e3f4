package provider

import (
	"fmt"
	"strconv"
	"sync"
)

// Descriptor declaratively describes a provider instance.
type Descriptor struct {
	// Name identifies the instance in health and metrics output.
	Name string `toml:"name" mapstructure:"name"`
	// Kind selects the implementation: sqlite or redis.
	Kind string `toml:"kind" mapstructure:"kind"`
	// Params are kind-specific connection parameters.
	Params map[string]string `toml:"params" mapstructure:"params"`
}

// Builder constructs a provider from its descriptor.
type Builder func(d Descriptor) (MemoryProvider, error)

// Factory builds providers from descriptors. The builder registry can be
// swapped and reset at runtime so tests can substitute fakes without a
// process restart.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewFactory returns a factory seeded with the built-in backends.
func NewFactory() *Factory {
	f := &Factory{}
	f.Reset()
	return f
}

// Register installs or replaces the builder for a kind.
func (f *Factory) Register(kind string, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[kind] = b
}

// Reset restores the built-in builder set, dropping any test overrides.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders = map[string]Builder{
		"sqlite": buildSQLite,
		"redis":  buildRedis,
	}
}

// New builds a provider from its descriptor.
func (f *Factory) New(d Descriptor) (MemoryProvider, error) {
	f.mu.RLock()
	b, ok := f.builders[d.Kind]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider kind %q: %w", d.Kind, ErrValidation)
	}
	return b(d)
}

func buildSQLite(d Descriptor) (MemoryProvider, error) {
	path := d.Params["path"]
	if path == "" {
		return nil, fmt.Errorf("sqlite provider requires a path param: %w", ErrValidation)
	}
	return NewSQLiteProvider(path)
}

func buildRedis(d Descriptor) (MemoryProvider, error) {
	db := 0
	if raw := d.Params["db"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("redis db param %q: %w", raw, ErrValidation)
		}
		db = n
	}
	return NewRedisProvider(d.Params["addr"], d.Params["password"], db)
}
