package skills

import (
	"fmt"
	"sync/atomic"
	"time"

	"skillhost/pkg/logger"
)

// LoadError reports a registry load that was rejected. The previously
// active registry stays in effect.
type LoadError struct {
	Path   string
	Name   string
	Reason string
}

func (e *LoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("load skill %q (%s): %s", e.Name, e.Path, e.Reason)
	}
	return fmt.Sprintf("load skills from %s: %s", e.Path, e.Reason)
}

// Registry is an immutable snapshot of loaded skill manifests.
// Lookup order is load order: sorted directory walk at load time.
type Registry struct {
	byName   map[string]*SkillInfo
	ordered  []*SkillInfo
	loadedAt time.Time
}

// LoadRegistry builds a registry from every SKILL.md under the
// loader's roots. A manifest with a missing or duplicate name fails
// the whole load; partial registries are never returned.
func LoadRegistry(loader *SkillsLoader) (*Registry, error) {
	infos := loader.ListSkills()

	reg := &Registry{
		byName:   make(map[string]*SkillInfo, len(infos)),
		ordered:  make([]*SkillInfo, 0, len(infos)),
		loadedAt: time.Now(),
	}

	for _, info := range infos {
		if err := info.validate(); err != nil {
			return nil, &LoadError{Path: info.Path, Name: info.Name, Reason: err.Error()}
		}
		if _, exists := reg.byName[info.Name]; exists {
			return nil, &LoadError{Path: info.Path, Name: info.Name, Reason: "duplicate skill name"}
		}
		info.loadOrder = len(reg.ordered)
		reg.byName[info.Name] = info
		reg.ordered = append(reg.ordered, info)
	}

	return reg, nil
}

func (r *Registry) Lookup(name string) (*SkillInfo, bool) {
	info, ok := r.byName[name]
	return info, ok
}

// ListAll returns every manifest in load order.
func (r *Registry) ListAll() []*SkillInfo {
	out := make([]*SkillInfo, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ListAlwaysOn returns always-on manifests in load order.
func (r *Registry) ListAlwaysOn() []*SkillInfo {
	var out []*SkillInfo
	for _, info := range r.ordered {
		if info.AlwaysOn {
			out = append(out, info)
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.ordered)
}

func (r *Registry) LoadedAt() time.Time {
	return r.loadedAt
}

// Store publishes the active registry. Reload swaps in a complete
// replacement atomically; readers never observe a partial load and a
// failed reload leaves the active registry untouched.
type Store struct {
	loader  *SkillsLoader
	current atomic.Pointer[Registry]
}

func NewStore(loader *SkillsLoader) (*Store, error) {
	s := &Store{loader: loader}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Reload() error {
	reg, err := LoadRegistry(s.loader)
	if err != nil {
		logger.WarnCF("skills", "Registry reload rejected; keeping active registry",
			map[string]interface{}{"error": err.Error()})
		return err
	}
	s.current.Store(reg)
	logger.InfoCF("skills", "Registry loaded",
		map[string]interface{}{"skills": reg.Len()})
	return nil
}

// Current returns the active registry snapshot.
func (s *Store) Current() *Registry {
	return s.current.Load()
}
