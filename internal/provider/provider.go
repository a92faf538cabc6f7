// Package provider hosts the environmental context providers, the registry
// that owns them, and the free-text command dispatcher that switches between
// them.
package provider

import (
	"math"
	"sort"
	"sync"

	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
)

// ContextProvider is the capability set every provider implements. The
// daemon calls GetContext from its fusion thread on cell transitions;
// PrefetchContext is fire-and-forget.
type ContextProvider interface {
	// Initialize consumes a semi-structured JSON configuration. It is
	// idempotent and fails softly: a provider left with defaults is usable.
	Initialize(config []byte) error

	// GetContext returns a fully populated frame for the position. External
	// latency is bounded by the provider's cache.
	GetContext(lat, lon float64) shm.ContextFrame

	// PrefetchContext triggers background fetches for points ahead along
	// the heading vector. Failures are swallowed.
	PrefetchContext(lat, lon, headingDeg, distanceM float64)

	// Name returns the provider's fixed registry name.
	Name() string
}

// Factory produces a provider instance on first activation.
type Factory func() ContextProvider

// HeaderMirror receives the active plugin name and accuracy level so
// consumers can observe them through the shared-memory header. shm.Writer
// implements it; tests use a fake.
type HeaderMirror interface {
	SetActivePlugin(name string)
	SetAccuracyLevel(level float64)
}

// Cache parameters shared by all providers: a query within this radius and
// age of the cached point is a hit, bounding upstream pressure to at most
// one fetch per 5 s for a stationary user and one per cell when moving.
const (
	cacheRadiusDeg = 0.001
	cacheTTLMS     = 5000
)

// frameCache is the single-slot cache every provider carries. It is owned by
// the provider instance and touched only from the daemon thread.
type frameCache struct {
	frame shm.ContextFrame
	lat   float64
	lon   float64
	tsMS  int64
	valid bool
}

func (c *frameCache) get(lat, lon float64, nowMS int64) (shm.ContextFrame, bool) {
	if !c.valid {
		return shm.ContextFrame{}, false
	}
	if nowMS-c.tsMS >= cacheTTLMS {
		return shm.ContextFrame{}, false
	}
	if math.Abs(lat-c.lat) >= cacheRadiusDeg || math.Abs(lon-c.lon) >= cacheRadiusDeg {
		return shm.ContextFrame{}, false
	}
	return c.frame, true
}

func (c *frameCache) put(frame shm.ContextFrame, lat, lon float64, nowMS int64) {
	c.frame = frame
	c.lat = lat
	c.lon = lon
	c.tsMS = nowMS
	c.valid = true
}

// Registry maps provider names to factories and owns the lazily created
// instances plus the single active provider. Activation and lookups are
// mutex-guarded; commands normally arrive serialised through the daemon
// thread but the HTTP command surface may call in from another.
type Registry struct {
	mu         sync.Mutex
	factories  map[string]Factory
	instances  map[string]ContextProvider
	configs    map[string][]byte
	active     ContextProvider
	activeName string
	mirror     HeaderMirror
}

// NewRegistry returns an empty registry. mirror may be nil.
func NewRegistry(mirror HeaderMirror) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]ContextProvider),
		configs:   make(map[string][]byte),
		mirror:    mirror,
	}
}

// Register adds a named factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	monitoring.Logf("registry: registered provider %q", name)
}

// SetConfig stores the configuration blob handed to the provider's
// Initialize when it is first instantiated.
func (r *Registry) SetConfig(name string, config []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = config
}

// Activate resolves or creates the named provider and makes it active. It
// reports false for unknown names and leaves the active provider unchanged.
func (r *Registry) Activate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.resolveLocked(name)
	if err != nil {
		monitoring.Logf("registry: %v", err)
		return false
	}
	r.active = p
	r.activeName = name
	if r.mirror != nil {
		r.mirror.SetActivePlugin(name)
	}
	monitoring.Logf("registry: activated provider %q", name)
	return true
}

// Active returns the active provider and its name; the provider is nil when
// nothing has been activated.
func (r *Registry) Active() (ContextProvider, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.activeName
}

// ActiveName returns the active provider's name, empty when none.
func (r *Registry) ActiveName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeName
}

// Provider resolves (creating if necessary) a provider without activating
// it.
func (r *Registry) Provider(name string) (ContextProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name)
}

// Providers lists the registered names, sorted.
func (r *Registry) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) resolveLocked(name string) (ContextProvider, error) {
	if p, ok := r.instances[name]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, &unknownProviderError{name: name}
	}
	p := f()
	if err := p.Initialize(r.configs[name]); err != nil {
		// Initialization is soft: the provider proceeds with defaults.
		monitoring.Logf("registry: provider %q init: %v", name, err)
	}
	r.instances[name] = p
	return p, nil
}

type unknownProviderError struct{ name string }

func (e *unknownProviderError) Error() string {
	return "unknown provider " + e.name
}
