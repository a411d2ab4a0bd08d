package service

import (
	"sync"

	"session-agent/internal/application/port/output"
	"session-agent/internal/domain/entity"
)

var _ output.LocatorRegistry = (*LocatorRegistryImpl)(nil)

// LocatorRegistryImpl keeps field locators in registration order so that the
// site profile stays the single source of declared fallbacks.
type LocatorRegistryImpl struct {
	mu       sync.RWMutex
	order    []entity.FieldName
	locators map[entity.FieldName]entity.FieldLocator
}

func NewLocatorRegistry(locators ...entity.FieldLocator) *LocatorRegistryImpl {
	r := &LocatorRegistryImpl{
		locators: make(map[entity.FieldName]entity.FieldLocator),
	}
	for _, l := range locators {
		r.Register(l)
	}
	return r
}

// Register replaces any earlier locator for the same field.
func (r *LocatorRegistryImpl) Register(locator entity.FieldLocator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locators[locator.Field]; !ok {
		r.order = append(r.order, locator.Field)
	}
	strategies := make([]entity.Strategy, len(locator.Strategies))
	copy(strategies, locator.Strategies)
	locator.Strategies = strategies
	r.locators[locator.Field] = locator
}

func (r *LocatorRegistryImpl) Get(field entity.FieldName) (entity.FieldLocator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	locator, ok := r.locators[field]
	return locator, ok
}

func (r *LocatorRegistryImpl) All() []entity.FieldLocator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]entity.FieldLocator, 0, len(r.order))
	for _, field := range r.order {
		result = append(result, r.locators[field])
	}
	return result
}
