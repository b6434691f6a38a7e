package cadence

import "time"

// Entity carries the timestamps shared by all mutable Cadence records.
// Embed it in structs that are persisted by a store.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with both timestamps set to the current
// UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// NewEntityAt returns an Entity with both timestamps set to the given
// instant. Used by components that run under an injected clock.
func NewEntityAt(at time.Time) Entity {
	return Entity{CreatedAt: at, UpdatedAt: at}
}
