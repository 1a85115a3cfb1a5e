package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"onramp/internal/onboarding/models"
	id "onramp/pkg/domain"
	"onramp/pkg/platform/sentinel"
)

// Postgres persists applications in the applications table. The version
// column backs the optimistic-concurrency contract: every UPDATE is guarded
// by WHERE version = $expected.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const applicationColumns = `
	id, segment, profile, terms_accepted, privacy_accepted,
	status, rejection_reason, kyc_verification_id, auth_user_id, billing_profile_id,
	version, created_at, updated_at, submitted_at, approved_at, rejected_at
`

func (s *Postgres) Create(ctx context.Context, app *models.Application) error {
	profile, err := json.Marshal(app.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(app.ID), string(app.Segment), profile,
		app.TermsAccepted, app.PrivacyAccepted,
		string(app.Status), app.RejectionReason,
		app.KYCVerificationID, app.AuthUserID, app.BillingProfileID,
		app.Version, app.CreatedAt, app.UpdatedAt,
		app.SubmittedAt, app.ApprovedAt, app.RejectedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(appID)))
}

func (s *Postgres) FindByVerificationID(ctx context.Context, verificationID string) (*models.Application, error) {
	if verificationID == "" {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE kyc_verification_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, verificationID))
}

func (s *Postgres) Update(ctx context.Context, app *models.Application) error {
	profile, err := json.Marshal(app.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	query := `
		UPDATE applications SET
			segment = $2, profile = $3, terms_accepted = $4, privacy_accepted = $5,
			status = $6, rejection_reason = $7, kyc_verification_id = $8,
			auth_user_id = $9, billing_profile_id = $10,
			version = version + 1, updated_at = $11,
			submitted_at = $12, approved_at = $13, rejected_at = $14
		WHERE id = $1 AND version = $15
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(app.ID), string(app.Segment), profile,
		app.TermsAccepted, app.PrivacyAccepted,
		string(app.Status), app.RejectionReason, app.KYCVerificationID,
		app.AuthUserID, app.BillingProfileID,
		app.UpdatedAt, app.SubmittedAt, app.ApprovedAt, app.RejectedAt,
		app.Version,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or someone else won the version race.
		if _, findErr := s.FindByID(ctx, app.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	app.Version++
	return nil
}

func (s *Postgres) List(ctx context.Context, filter ListFilter) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanOne(row *sql.Row) (*models.Application, error) {
	app, err := s.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return app, nil
}

func (s *Postgres) scanRow(row rowScanner) (*models.Application, error) {
	var (
		app       models.Application
		appID     uuid.UUID
		segment   string
		status    string
		profile   []byte
		submitted sql.NullTime
		approved  sql.NullTime
		rejected  sql.NullTime
	)
	err := row.Scan(
		&appID, &segment, &profile, &app.TermsAccepted, &app.PrivacyAccepted,
		&status, &app.RejectionReason, &app.KYCVerificationID, &app.AuthUserID,
		&app.BillingProfileID, &app.Version, &app.CreatedAt, &app.UpdatedAt,
		&submitted, &approved, &rejected,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan application row: %w", err)
	}
	app.ID = id.ApplicationID(appID)
	app.Segment = models.Segment(segment)
	app.Status = models.Status(status)
	if err := json.Unmarshal(profile, &app.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if submitted.Valid {
		app.SubmittedAt = &submitted.Time
	}
	if approved.Valid {
		app.ApprovedAt = &approved.Time
	}
	if rejected.Valid {
		app.RejectedAt = &rejected.Time
	}
	return &app, nil
}
