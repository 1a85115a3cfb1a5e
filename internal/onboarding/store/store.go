package store

import (
	"context"

	"onramp/internal/onboarding/models"
	id "onramp/pkg/domain"
)

// ListFilter narrows List results. Zero value lists everything.
type ListFilter struct {
	Status models.Status
	Limit  int
	Offset int
}

// ApplicationStore persists applications with optimistic concurrency.
//
// Update compares the row's stored version against app.Version (the version
// the caller loaded). On match the row is written with version+1 and
// app.Version is bumped; on mismatch sentinel.ErrVersionMismatch is returned
// and nothing is written.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
	FindByVerificationID(ctx context.Context, verificationID string) (*models.Application, error)
	List(ctx context.Context, filter ListFilter) ([]*models.Application, error)
}
