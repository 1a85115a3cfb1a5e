package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger records status transitions. It is append-only and uses the store
// layer for persistence so tests can swap sinks easily.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends one entry. Timestamp defaults to now when unset.
func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return l.store.Append(ctx, entry)
}

// List returns the transition history for an entity, oldest first.
func (l *Ledger) List(ctx context.Context, entityType EntityType, entityRef string) ([]Entry, error) {
	return l.store.ListByEntity(ctx, entityType, entityRef)
}
