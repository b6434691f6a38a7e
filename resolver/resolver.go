// Package resolver supplies per-entity token bindings at dispatch time.
// Bindings stored on a job at trigger time take precedence over anything
// a resolver returns.
package resolver

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/outreachlab/cadence"
)

// Resolver looks up the current token bindings for an entity.
// Implementations typically front a CRM or user database.
type Resolver interface {
	// Resolve returns the bindings for the given entity. An unknown
	// entity returns an error wrapping cadence.ErrEntityNotFound; the
	// dispatcher treats that as transient and retries, since a lead
	// record may land after its sequence is triggered.
	Resolve(ctx context.Context, entityID string) (map[string]string, error)
}

var _ Resolver = (*Static)(nil)

// Static is a map-backed Resolver. Safe for concurrent use. Intended
// for testing and small fixed rosters.
type Static struct {
	mu       sync.RWMutex
	entities map[string]map[string]string
}

// NewStatic creates a Static resolver from the given entity table.
// The input map is copied.
func NewStatic(entities map[string]map[string]string) *Static {
	s := &Static{entities: make(map[string]map[string]string, len(entities))}
	for entityID, bindings := range entities {
		s.entities[entityID] = maps.Clone(bindings)
	}
	return s
}

// Put adds or replaces the bindings for an entity.
func (s *Static) Put(entityID string, bindings map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entityID] = maps.Clone(bindings)
}

// Resolve returns a copy of the entity's bindings.
func (s *Static) Resolve(_ context.Context, entityID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bindings, ok := s.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", entityID, cadence.ErrEntityNotFound)
	}
	return maps.Clone(bindings), nil
}
