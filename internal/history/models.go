package history

import (
	"time"

	"github.com/google/uuid"
)

// EntityType distinguishes the two status machines sharing the ledger.
type EntityType string

const (
	EntityApplication EntityType = "application"
	EntityDocument    EntityType = "document"
)

// Entry records one accepted status transition. Entries are immutable and
// append-only; the ledger is the audit trail, the entity's own status field
// is the fast-read source of truth.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityRef  string     `json:"entity_ref"`
	FromStatus string     `json:"from_status"`
	ToStatus   string     `json:"to_status"`
	Reason     string     `json:"reason,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
