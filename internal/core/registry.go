package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]*Profile)
	registryMu sync.RWMutex
)

// Register adds an import profile. It panics on a duplicate key or an
// inconsistent profile, since profiles are registered from init.
func Register(p *Profile) {
	if err := p.validate(); err != nil {
		panic(err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[p.Key]; exists {
		panic(fmt.Sprintf("profile already registered: %s", p.Key))
	}
	registry[p.Key] = p
}

// Get returns a profile by key.
func Get(key string) (*Profile, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := registry[key]
	return p, ok
}

// All returns every registered profile sorted by group then key.
func All() []*Profile {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*Profile, 0, len(registry))
	for _, p := range registry {
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Key < result[j].Key
	})
	return result
}

// Clear removes all registered profiles. Used by tests.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*Profile)
}
