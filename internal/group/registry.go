package group

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/heater-share/internal/heater"
)

// Spec is a named group configuration as loaded from the config file.
type Spec struct {
	Name   string
	Config Config
}

// Registry is the process-wide set of heater groups, keyed by name.
// Groups are created once and only change through explicit calls.
type Registry struct {
	mu     sync.Mutex
	groups map[string]*Group
	order  []string
	owners map[string]string // heater name -> group name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]*Group),
		owners: make(map[string]string),
	}
}

// Group returns the named group, creating it if needed. If cfg is non-nil
// an existing group is reconfigured in place; a new group uses cfg or the
// defaults.
func (r *Registry) Group(name string, cfg *Config) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.groups[name]; ok {
		if cfg != nil {
			if err := g.Reconfigure(*cfg); err != nil {
				return nil, &ConfigError{Group: name, Err: err}
			}
		}
		return g, nil
	}

	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, &ConfigError{Group: name, Err: err}
	}
	g := New(name, c)
	r.groups[name] = g
	r.order = append(r.order, name)
	return g, nil
}

// Lookup returns an existing group.
func (r *Registry) Lookup(name string) (*Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[name]
	return g, ok
}

// Groups returns every group in creation order.
func (r *Registry) Groups() []*Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Group, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.groups[name])
	}
	return out
}

// Register adds h to the named group, creating the group with defaults if
// it does not exist yet. A heater can belong to only one group; registering
// it again with the same group does nothing.
func (r *Registry) Register(groupName string, h *heater.Heater) error {
	g, err := r.Group(groupName, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if owner, ok := r.owners[h.Name()]; ok {
		r.mu.Unlock()
		if owner == groupName {
			return nil
		}
		return &ConfigError{Group: groupName, Heater: h.Name(),
			Err: fmt.Errorf("%w (owned by group %s)", ErrDuplicateHeater, owner)}
	}
	r.owners[h.Name()] = groupName
	r.mu.Unlock()

	g.Register(h)
	return nil
}

// Owner returns the group a heater belongs to.
func (r *Registry) Owner(heaterName string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.owners[heaterName]
	return name, ok
}

// Remove drops a group and returns its heaters to direct control.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	g, ok := r.groups[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.groups, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for heaterName, owner := range r.owners {
		if owner == name {
			delete(r.owners, heaterName)
		}
	}
	r.mu.Unlock()

	for _, h := range g.Heaters() {
		g.Unregister(h)
	}
}

// Load creates every group in specs and registers its heaters. A group
// created by this call that has a configuration error is removed and
// reported; the others still load. A group that already existed is kept
// with its previous settings.
func (r *Registry) Load(specs []Spec, lookup func(name string) (*heater.Heater, bool)) error {
	var errs []error
	for _, spec := range specs {
		_, existed := r.Lookup(spec.Name)
		if err := r.load(spec, lookup); err != nil {
			if !existed {
				r.Remove(spec.Name)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) load(spec Spec, lookup func(string) (*heater.Heater, bool)) error {
	cfg := spec.Config
	g, err := r.Group(spec.Name, &cfg)
	if err != nil {
		return err
	}

	for _, name := range cfg.Heaters {
		h, ok := lookup(name)
		if !ok {
			return &ConfigError{Group: spec.Name, Heater: name, Err: ErrUnknownHeater}
		}
		if err := r.Register(spec.Name, h); err != nil {
			return err
		}
	}

	if err := g.Validate(); err != nil {
		return &ConfigError{Group: spec.Name, Err: err}
	}
	return nil
}
