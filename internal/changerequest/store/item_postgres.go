package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/sentinel"
	txcontext "mppchs/pkg/platform/tx"
)

const itemColumns = `
	id, change_request_id, entity_type, entity_identifier, field_key, label,
	old_value, new_value, status, reviewer_id, reviewed_at, note, created_at`

// ReplaceItems deletes the request's items and inserts items in order,
// assigning their ids. Callers run it inside a transaction.
func (s *PostgresStore) ReplaceItems(ctx context.Context, requestID id.ChangeRequestID, items []models.ChangeItem) ([]models.ChangeItem, error) {
	exec := txcontext.Exec(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM change_items WHERE change_request_id = $1`, requestID); err != nil {
		return nil, fmt.Errorf("delete change items: %w", err)
	}
	query := `
		INSERT INTO change_items (
			change_request_id, entity_type, entity_identifier, field_key, label,
			old_value, new_value, status, reviewer_id, reviewed_at, note, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	out := make([]models.ChangeItem, len(items))
	for i, it := range items {
		it.ChangeRequestID = requestID
		var newID int64
		err := exec.QueryRowContext(ctx, query,
			requestID, it.EntityType, it.EntityIdentifier, it.FieldKey, it.Label,
			it.OldValue, it.NewValue, it.Status, nullUserID(it.ReviewerID), it.ReviewedAt, it.Note, it.CreatedAt,
		).Scan(&newID)
		if err != nil {
			return nil, fmt.Errorf("insert change item: %w", err)
		}
		it.ID = id.ChangeItemID(newID)
		out[i] = it
	}
	return out, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, requestID id.ChangeRequestID) ([]models.ChangeItem, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+itemColumns+` FROM change_items WHERE change_request_id = $1 ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query change items: %w", err)
	}
	defer rows.Close()
	var out []models.ChangeItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change items: %w", err)
	}
	return out, nil
}

// FindItem returns the item only if it belongs to requestID.
func (s *PostgresStore) FindItem(ctx context.Context, requestID id.ChangeRequestID, itemID id.ChangeItemID) (*models.ChangeItem, error) {
	return scanItem(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM change_items WHERE id = $1 AND change_request_id = $2`, itemID, requestID))
}

func (s *PostgresStore) UpdateItem(ctx context.Context, it *models.ChangeItem) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE change_items SET status = $3, reviewer_id = $4, reviewed_at = $5, note = $6
		WHERE id = $1 AND change_request_id = $2`,
		it.ID, it.ChangeRequestID, it.Status, nullUserID(it.ReviewerID), it.ReviewedAt, it.Note,
	)
	if err != nil {
		return fmt.Errorf("update change item: %w", err)
	}
	return requireAffected(res)
}

func scanItem(row rowScanner) (*models.ChangeItem, error) {
	var (
		it         models.ChangeItem
		reviewerID sql.NullInt64
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&it.ID, &it.ChangeRequestID, &it.EntityType, &it.EntityIdentifier, &it.FieldKey, &it.Label,
		&it.OldValue, &it.NewValue, &it.Status, &reviewerID, &reviewedAt, &it.Note, &it.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan change item: %w", err)
	}
	it.ReviewerID = id.UserID(reviewerID.Int64)
	it.ReviewedAt = timePtr(reviewedAt)
	return &it, nil
}

// ReplaceLogs swaps the request's dependent change log for entries.
func (s *PostgresStore) ReplaceLogs(ctx context.Context, requestID id.ChangeRequestID, entries []models.DependentChangeLogEntry) error {
	exec := txcontext.Exec(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM dependent_change_logs WHERE change_request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete dependent logs: %w", err)
	}
	query := `
		INSERT INTO dependent_change_logs (
			change_request_id, dependent_id, action, relationship, is_alive, health_status,
			payload_before, payload_after, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, e := range entries {
		before, err := marshalOptional(e.Before)
		if err != nil {
			return err
		}
		after, err := marshalOptional(e.After)
		if err != nil {
			return err
		}
		var dependentID sql.NullInt64
		if !e.DependentID.IsNil() {
			dependentID = sql.NullInt64{Int64: int64(e.DependentID), Valid: true}
		}
		if _, err := exec.ExecContext(ctx, query,
			requestID, dependentID, e.Action, e.Relationship, e.IsAlive, e.HealthStatus,
			before, after, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert dependent log: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, requestID id.ChangeRequestID) ([]models.DependentChangeLogEntry, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, change_request_id, dependent_id, action, relationship, is_alive, health_status,
			payload_before, payload_after, created_at
		FROM dependent_change_logs
		WHERE change_request_id = $1
		ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query dependent logs: %w", err)
	}
	defer rows.Close()
	var out []models.DependentChangeLogEntry
	for rows.Next() {
		var (
			e             models.DependentChangeLogEntry
			dependentID   sql.NullInt64
			isAlive       sql.NullBool
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.ChangeRequestID, &dependentID, &e.Action, &e.Relationship, &isAlive,
			&e.HealthStatus, &before, &after, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dependent log: %w", err)
		}
		e.DependentID = id.DependentID(dependentID.Int64)
		if isAlive.Valid {
			v := isAlive.Bool
			e.IsAlive = &v
		}
		if e.Before, err = unmarshalOptional(before); err != nil {
			return nil, err
		}
		if e.After, err = unmarshalOptional(after); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependent logs: %w", err)
	}
	return out, nil
}

// marshalOptional encodes d, or returns an untyped nil so the column is NULL.
func marshalOptional(d *models.DependentSnapshot) (any, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode dependent payload: %w", err)
	}
	return raw, nil
}

func unmarshalOptional(raw []byte) (*models.DependentSnapshot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d models.DependentSnapshot
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode dependent payload: %w", err)
	}
	return &d, nil
}
