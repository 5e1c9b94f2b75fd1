package transport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

type entry struct {
	build Builder
	caps  *Capabilities
}

// Registry maps PUBSUB_SYSTEM names to builders and their capabilities.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry is filled by the broker packages' init functions; import
// transport/transports to register all of them.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Register adds or replaces the builder for name. Capabilities registered
// earlier are kept.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[name]
	e.build = builder
	r.entries[name] = e
}

func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{build: builder, caps: &caps}
}

// GetCapabilities returns what was registered for name, or a zero set
// carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.entries[name]; e.caps != nil {
		return *e.caps
	}
	return Capabilities{Name: name}
}

// Build runs the builder named by cfg.GetPubSubSystem(). A nil logger
// discards.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}
	name := cfg.GetPubSubSystem()
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || e.build == nil {
		return Transport{}, fmt.Errorf("contractflow: unknown transport %q (registered: %v)", name, r.Names())
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return e.build(ctx, cfg, logger)
}

// Names lists registered transports in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

func Register(name string, builder Builder) { DefaultRegistry.Register(name, builder) }

func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build builds from DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
