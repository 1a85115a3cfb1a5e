package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"onramp/internal/document/models"
	id "onramp/pkg/domain"
	"onramp/pkg/platform/sentinel"
)

// Postgres persists documents in the documents table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const documentColumns = `
	id, application_id, doc_type, status, is_primary,
	file_name, content_hash, size_bytes, mime_type, storage_ref,
	reviewer_id, review_notes, rejection_reason, suggested_action,
	confidence, expiry_date, reviewed_at, allow_resubmission,
	version, created_at, updated_at
`

func (s *Postgres) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID), uuid.UUID(doc.ApplicationID), string(doc.Type),
		string(doc.Status), doc.IsPrimary,
		doc.FileName, doc.ContentHash, doc.SizeBytes, doc.MIMEType, doc.StorageRef,
		reviewerValue(doc.Review.ReviewerID), doc.Review.Notes, doc.Review.RejectionReason,
		doc.Review.SuggestedAction, doc.Review.Confidence, doc.Review.ExpiryDate,
		doc.Review.ReviewedAt, doc.AllowResubmission,
		doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *Postgres) Update(ctx context.Context, doc *models.Document) error {
	query := `
		UPDATE documents SET
			status = $2, is_primary = $3,
			reviewer_id = $4, review_notes = $5, rejection_reason = $6,
			suggested_action = $7, confidence = $8, expiry_date = $9,
			reviewed_at = $10, allow_resubmission = $11,
			version = version + 1, updated_at = $12
		WHERE id = $1 AND version = $13
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(doc.ID), string(doc.Status), doc.IsPrimary,
		reviewerValue(doc.Review.ReviewerID), doc.Review.Notes, doc.Review.RejectionReason,
		doc.Review.SuggestedAction, doc.Review.Confidence, doc.Review.ExpiryDate,
		doc.Review.ReviewedAt, doc.AllowResubmission,
		doc.UpdatedAt, doc.Version,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, doc.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	doc.Version++
	return nil
}

func (s *Postgres) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE application_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *Postgres) Delete(ctx context.Context, docID id.DocumentID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, uuid.UUID(docID))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func reviewerValue(reviewerID *id.ReviewerID) any {
	if reviewerID == nil {
		return nil
	}
	return uuid.UUID(*reviewerID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc        models.Document
		docID      uuid.UUID
		appID      uuid.UUID
		docType    string
		status     string
		reviewerID uuid.NullUUID
		confidence sql.NullFloat64
		expiry     sql.NullTime
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&docID, &appID, &docType, &status, &doc.IsPrimary,
		&doc.FileName, &doc.ContentHash, &doc.SizeBytes, &doc.MIMEType, &doc.StorageRef,
		&reviewerID, &doc.Review.Notes, &doc.Review.RejectionReason,
		&doc.Review.SuggestedAction, &confidence, &expiry,
		&reviewedAt, &doc.AllowResubmission,
		&doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document row: %w", err)
	}
	doc.ID = id.DocumentID(docID)
	doc.ApplicationID = id.ApplicationID(appID)
	doc.Type = models.DocumentType(docType)
	doc.Status = models.VerificationStatus(status)
	if reviewerID.Valid {
		r := id.ReviewerID(reviewerID.UUID)
		doc.Review.ReviewerID = &r
	}
	if confidence.Valid {
		doc.Review.Confidence = &confidence.Float64
	}
	if expiry.Valid {
		doc.Review.ExpiryDate = &expiry.Time
	}
	if reviewedAt.Valid {
		doc.Review.ReviewedAt = &reviewedAt.Time
	}
	return &doc, nil
}
