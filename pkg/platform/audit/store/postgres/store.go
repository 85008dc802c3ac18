package postgres

import (
	"context"
	"database/sql"
	"fmt"

	id "mppchs/pkg/domain"
	audit "mppchs/pkg/platform/audit"
	txcontext "mppchs/pkg/platform/tx"
)

// Store implements audit.Store on the change_request_audit table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one entry, inside the caller's transaction when present.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO change_request_audit (id, change_request_id, action, actor_id, note, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		int64(event.ChangeRequestID),
		string(event.Action),
		int64(event.ActorID),
		event.Note,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByChangeRequest returns entries for one request, oldest first.
func (s *Store) ListByChangeRequest(ctx context.Context, changeRequestID id.ChangeRequestID) ([]audit.Event, error) {
	query := `
		SELECT id, change_request_id, action, actor_id, note, request_id, created_at
		FROM change_request_audit
		WHERE change_request_id = $1
		ORDER BY created_at, seq
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, int64(changeRequestID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event   audit.Event
			crID    int64
			actorID int64
			action  string
		)
		if err := rows.Scan(&event.ID, &crID, &action, &actorID, &event.Note, &event.RequestID, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		event.ChangeRequestID = id.ChangeRequestID(crID)
		event.ActorID = id.UserID(actorID)
		event.Action = audit.Action(action)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return events, nil
}
