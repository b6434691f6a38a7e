package cadence

import "github.com/outreachlab/cadence/id"

// ID is the primary identifier type for all Cadence entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
