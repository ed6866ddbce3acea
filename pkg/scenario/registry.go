package scenario

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages all available scenarios
type Registry struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
}

// globalRegistry is the default scenario registry
var globalRegistry = &Registry{
	scenarios: make(map[string]Scenario),
}

// Register adds a scenario to the global registry
func Register(s Scenario) error {
	return globalRegistry.Register(s)
}

// Get retrieves a scenario from the global registry
func Get(name string) (Scenario, error) {
	return globalRegistry.Get(name)
}

// List returns all registered scenario names
func List() []string {
	return globalRegistry.List()
}

// NewRegistry creates a new scenario registry
func NewRegistry() *Registry {
	return &Registry{
		scenarios: make(map[string]Scenario),
	}
}

// Register adds a scenario to the registry
func (r *Registry) Register(s Scenario) error {
	if s == nil {
		return fmt.Errorf("scenario cannot be nil")
	}

	name := s.Name()
	if name == "" {
		return fmt.Errorf("scenario name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scenarios[name]; exists {
		return fmt.Errorf("scenario %q already registered", name)
	}

	r.scenarios[name] = s
	return nil
}

// Get retrieves a scenario by name
func (r *Registry) Get(name string) (Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.scenarios[name]
	if !exists {
		return nil, fmt.Errorf("scenario %q not found", name)
	}

	return s, nil
}

// List returns all registered scenario names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Clear removes all scenarios from the registry
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scenarios = make(map[string]Scenario)
}

// Infos returns detailed information about all registered scenarios
func Infos() []Info {
	return globalRegistry.Infos()
}

// Infos returns detailed information about all scenarios, sorted by name
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.scenarios))
	for _, s := range r.scenarios {
		info := Info{
			Name:        s.Name(),
			Description: s.Description(),
		}

		if ext, ok := s.(interface{ Info() Info }); ok {
			info = ext.Info()
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}
