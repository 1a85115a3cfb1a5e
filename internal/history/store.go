package history

import "context"

// Store persists ledger entries. Append-only: there is no update or delete.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityRef string) ([]Entry, error)
}
