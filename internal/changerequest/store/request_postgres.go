package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"mppchs/internal/changerequest/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/sentinel"
	txcontext "mppchs/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists change requests, their items and dependent logs.
// Every method joins the transaction carried in ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `
	id, beneficiary_id, user_id, reference_no, submission_no, revision_no, status,
	requested_at, reviewed_at, reviewer_id, review_comment,
	payload_before, payload_after, summary_diff, undertaking_accepted,
	created_at, updated_at`

// Create inserts cr. A second open request for the same beneficiary is
// rejected by the partial unique index and reported as sentinel.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, cr *models.ChangeRequest) error {
	before, after, summary, err := marshalPayloads(cr)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO change_requests (
			beneficiary_id, user_id, reference_no, submission_no, revision_no, status,
			requested_at, reviewed_at, reviewer_id, review_comment,
			payload_before, payload_after, summary_diff, undertaking_accepted,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	var newID int64
	err = txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query,
		cr.BeneficiaryID, cr.UserID, cr.ReferenceNo, cr.SubmissionNo, cr.RevisionNo, cr.Status,
		cr.RequestedAt, cr.ReviewedAt, nullUserID(cr.ReviewerID), cr.ReviewComment,
		before, after, summary, cr.UndertakingAccepted,
		cr.CreatedAt, cr.UpdatedAt,
	).Scan(&newID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert change request: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert change request: %w", err)
	}
	cr.ID = id.ChangeRequestID(newID)
	return nil
}

// Update writes every mutable column of cr.
func (s *PostgresStore) Update(ctx context.Context, cr *models.ChangeRequest) error {
	before, after, summary, err := marshalPayloads(cr)
	if err != nil {
		return err
	}
	query := `
		UPDATE change_requests SET
			user_id = $2, revision_no = $3, status = $4,
			requested_at = $5, reviewed_at = $6, reviewer_id = $7, review_comment = $8,
			payload_before = $9, payload_after = $10, summary_diff = $11,
			undertaking_accepted = $12, updated_at = $13
		WHERE id = $1
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		cr.ID, cr.UserID, cr.RevisionNo, cr.Status,
		cr.RequestedAt, cr.ReviewedAt, nullUserID(cr.ReviewerID), cr.ReviewComment,
		before, after, summary, cr.UndertakingAccepted, cr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update change request: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.ChangeRequestID) (*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM change_requests WHERE id = $1`
	return scanRequest(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, requestID))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, requestID id.ChangeRequestID) (*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM change_requests WHERE id = $1 FOR UPDATE`
	return scanRequest(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, requestID))
}

// FindActive returns the beneficiary's open request or sentinel.ErrNotFound.
func (s *PostgresStore) FindActive(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM change_requests
		WHERE beneficiary_id = $1 AND status = ANY($2)
		ORDER BY id DESC
		LIMIT 1`
	return scanRequest(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, beneficiaryID, statusArray(models.OpenStatuses)))
}

// ListByBeneficiary returns every request of the beneficiary, newest first.
func (s *PostgresStore) ListByBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM change_requests WHERE beneficiary_id = $1 ORDER BY id DESC`
	return s.queryRequests(ctx, query, beneficiaryID)
}

// ListOpen returns requests in statuses that belong to other beneficiaries.
func (s *PostgresStore) ListOpen(ctx context.Context, statuses []models.Status, exclude id.BeneficiaryID) ([]*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM change_requests
		WHERE status = ANY($1) AND beneficiary_id <> $2
		ORDER BY id`
	return s.queryRequests(ctx, query, statusArray(statuses), exclude)
}

// MaxSubmissionNo returns the highest submission number used for the
// beneficiary, zero when there is none.
func (s *PostgresStore) MaxSubmissionNo(ctx context.Context, beneficiaryID id.BeneficiaryID) (int, error) {
	var n int
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(submission_no), 0) FROM change_requests WHERE beneficiary_id = $1`,
		beneficiaryID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max submission no: %w", err)
	}
	return n, nil
}

// Counters recomputes the submitted and approved totals of a beneficiary.
func (s *PostgresStore) Counters(ctx context.Context, beneficiaryID id.BeneficiaryID) (Counters, error) {
	var c Counters
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE requested_at IS NOT NULL),
			COUNT(*) FILTER (WHERE status = $2)
		FROM change_requests
		WHERE beneficiary_id = $1`,
		beneficiaryID, models.StatusApproved,
	).Scan(&c.Submitted, &c.Approved)
	if err != nil {
		return Counters{}, fmt.Errorf("count change requests: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) queryRequests(ctx context.Context, query string, args ...any) ([]*models.ChangeRequest, error) {
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query change requests: %w", err)
	}
	defer rows.Close()
	var out []*models.ChangeRequest
	for rows.Next() {
		cr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change requests: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.ChangeRequest, error) {
	var (
		cr                     models.ChangeRequest
		requestedAt, reviewed  sql.NullTime
		reviewerID             sql.NullInt64
		before, after, summary []byte
	)
	err := row.Scan(
		&cr.ID, &cr.BeneficiaryID, &cr.UserID, &cr.ReferenceNo, &cr.SubmissionNo, &cr.RevisionNo, &cr.Status,
		&requestedAt, &reviewed, &reviewerID, &cr.ReviewComment,
		&before, &after, &summary, &cr.UndertakingAccepted,
		&cr.CreatedAt, &cr.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan change request: %w", err)
	}
	cr.RequestedAt = timePtr(requestedAt)
	cr.ReviewedAt = timePtr(reviewed)
	cr.ReviewerID = id.UserID(reviewerID.Int64)
	if err := json.Unmarshal(before, &cr.Before); err != nil {
		return nil, fmt.Errorf("decode payload_before: %w", err)
	}
	if err := json.Unmarshal(after, &cr.After); err != nil {
		return nil, fmt.Errorf("decode payload_after: %w", err)
	}
	if err := json.Unmarshal(summary, &cr.Summary); err != nil {
		return nil, fmt.Errorf("decode summary_diff: %w", err)
	}
	return &cr, nil
}

func marshalPayloads(cr *models.ChangeRequest) (before, after, summary []byte, err error) {
	if before, err = json.Marshal(cr.Before); err != nil {
		return nil, nil, nil, fmt.Errorf("encode payload_before: %w", err)
	}
	if after, err = json.Marshal(cr.After); err != nil {
		return nil, nil, nil, fmt.Errorf("encode payload_after: %w", err)
	}
	if summary, err = json.Marshal(cr.Summary); err != nil {
		return nil, nil, nil, fmt.Errorf("encode summary_diff: %w", err)
	}
	return before, after, summary, nil
}

func statusArray(statuses []models.Status) any {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return pq.Array(out)
}

func nullUserID(v id.UserID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: !v.IsNil()}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
