package history

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists ledger entries in the status_history table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO status_history (id, entity_type, entity_ref, from_status, to_status, reason, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.EntityType),
		entry.EntityRef,
		entry.FromStatus,
		entry.ToStatus,
		entry.Reason,
		entry.Actor,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityType EntityType, entityRef string) ([]Entry, error) {
	query := `
		SELECT id, entity_type, entity_ref, from_status, to_status, reason, actor, occurred_at
		FROM status_history
		WHERE entity_type = $1 AND entity_ref = $2
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(entityType), entityRef)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var et string
		if err := rows.Scan(&e.ID, &et, &e.EntityRef, &e.FromStatus, &e.ToStatus, &e.Reason, &e.Actor, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status history row: %w", err)
		}
		e.EntityType = EntityType(et)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return entries, nil
}
