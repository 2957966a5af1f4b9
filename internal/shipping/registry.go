package shipping

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the available shipping modules keyed by module code.
// Registration happens at wiring time; lookups happen per request.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

func (r *Registry) Register(module Module) error {
	code := module.Code()
	if code == "" {
		return fmt.Errorf("shipping module has empty code")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[code]; exists {
		return fmt.Errorf("shipping module already registered: %s", code)
	}
	r.modules[code] = module
	return nil
}

func (r *Registry) Get(code string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, ok := r.modules[code]
	return module, ok
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.modules))
	for code := range r.modules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
