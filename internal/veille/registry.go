package veille

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/veille/internal/model"
)

// Registry maps scraper names to their implementations.
type Registry struct {
	scrapers map[string]Scraper
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry holding the given scrapers in order.
func NewRegistry(scrapers ...Scraper) (*Registry, error) {
	r := &Registry{scrapers: make(map[string]Scraper)}
	for _, s := range scrapers {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a scraper to the registry. Names must be unique.
func (r *Registry) Register(s Scraper) error {
	name := s.Name()
	if _, dup := r.scrapers[name]; dup {
		return eris.Errorf("veille: scraper %q already registered", name)
	}
	r.scrapers[name] = s
	r.order = append(r.order, name)
	return nil
}

// Get returns a scraper by name.
func (r *Registry) Get(name string) (Scraper, error) {
	s, ok := r.scrapers[name]
	if !ok {
		return nil, eris.Errorf("veille: unknown scraper %q", name)
	}
	return s, nil
}

// All returns all scrapers in registration order.
func (r *Registry) All() []Scraper {
	result := make([]Scraper, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.scrapers[name])
	}
	return result
}

// AllNames returns all registered scraper names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ForCanton returns the first registered scraper covering c.
func (r *Registry) ForCanton(c model.Canton) (Scraper, bool) {
	for _, name := range r.order {
		if s := r.scrapers[name]; Covers(s, c) {
			return s, true
		}
	}
	return nil, false
}

// Len returns the number of registered scrapers.
func (r *Registry) Len() int {
	return len(r.order)
}
