package store

import (
	"context"

	"onramp/internal/document/models"
	id "onramp/pkg/domain"
)

// DocumentStore persists documents with the same version-CAS contract as the
// application store: Update is guarded by the version loaded with the entity
// and returns sentinel.ErrVersionMismatch on a lost race.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error)
	// Delete physically removes a document row (administrative purge only).
	// History entries are retained independently.
	Delete(ctx context.Context, docID id.DocumentID) error
}
