package sequence

import (
	"fmt"
	"sort"
	"sync"

	"github.com/outreachlab/cadence"
)

// Catalog is an open registry of sequence definitions.
// It is safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		defs: make(map[string]*Definition),
	}
}

// DefaultCatalog returns a Catalog pre-loaded with the builtin sequences.
func DefaultCatalog() (*Catalog, error) {
	c := NewCatalog()
	builtins, err := Builtin()
	if err != nil {
		return nil, err
	}
	for _, def := range builtins {
		if err := c.Register(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register validates and adds a definition. Registering an ID twice
// returns ErrDuplicateSequence.
func (c *Catalog) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.ID]; exists {
		return fmt.Errorf("%w: %q", cadence.ErrDuplicateSequence, def.ID)
	}
	c.defs[def.ID] = def
	return nil
}

// Get returns the definition with the given ID.
func (c *Catalog) Get(sequenceID string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[sequenceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cadence.ErrSequenceNotFound, sequenceID)
	}
	return def, nil
}

// Names returns all registered sequence IDs in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
