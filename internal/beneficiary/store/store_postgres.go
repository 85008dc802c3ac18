package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mppchs/internal/beneficiary/models"
	id "mppchs/pkg/domain"
	"mppchs/pkg/platform/sentinel"
	txcontext "mppchs/pkg/platform/tx"
)

// PostgresStore persists beneficiaries and dependents in PostgreSQL. Every
// method joins the transaction carried in ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed beneficiary store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const beneficiaryColumns = `
	id, full_name, gender, date_of_birth, mobile_number, email,
	address_line1, address_line2, city, district, state, pin_code,
	bank_name, bank_branch, ifsc_code,
	bank_account_encrypted, bank_account_masked,
	aadhaar_encrypted, aadhaar_masked, pan_encrypted, pan_masked,
	last_change_request_id, last_change_request_status, last_change_request_reviewer_id,
	last_change_request_at, change_requests_submitted, change_requests_approved,
	created_at, updated_at`

const dependentColumns = `
	id, beneficiary_id, full_name, relationship, gender, date_of_birth, city,
	is_alive, health_status, aadhaar_encrypted, aadhaar_masked, is_active,
	deleted_at, deleted_by, restored_at, restored_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, b *models.Beneficiary) error {
	query := `
		INSERT INTO beneficiaries (
			full_name, gender, date_of_birth, mobile_number, email,
			address_line1, address_line2, city, district, state, pin_code,
			bank_name, bank_branch, ifsc_code,
			bank_account_encrypted, bank_account_masked,
			aadhaar_encrypted, aadhaar_masked, pan_encrypted, pan_masked,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id
	`
	var newID int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query,
		b.FullName, b.Gender, b.DateOfBirth, b.MobileNumber, b.Email,
		b.AddressLine1, b.AddressLine2, b.City, b.District, b.State, b.PinCode,
		b.BankName, b.BankBranch, b.IFSCCode,
		b.BankAccount.Ciphertext, b.BankAccount.Masked,
		b.Aadhaar.Ciphertext, b.Aadhaar.Masked, b.PAN.Ciphertext, b.PAN.Masked,
		b.CreatedAt, b.UpdatedAt,
	).Scan(&newID)
	if err != nil {
		return fmt.Errorf("insert beneficiary: %w", err)
	}
	b.ID = id.BeneficiaryID(newID)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE id = $1`
	b, err := scanBeneficiary(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, int64(beneficiaryID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find beneficiary: %w", err)
	}
	return b, nil
}

// Update writes profile fields. The change request summary is left untouched.
func (s *PostgresStore) Update(ctx context.Context, b *models.Beneficiary) error {
	query := `
		UPDATE beneficiaries SET
			full_name = $2, gender = $3, date_of_birth = $4, mobile_number = $5, email = $6,
			address_line1 = $7, address_line2 = $8, city = $9, district = $10, state = $11, pin_code = $12,
			bank_name = $13, bank_branch = $14, ifsc_code = $15,
			bank_account_encrypted = $16, bank_account_masked = $17,
			aadhaar_encrypted = $18, aadhaar_masked = $19, pan_encrypted = $20, pan_masked = $21,
			updated_at = $22
		WHERE id = $1
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		int64(b.ID),
		b.FullName, b.Gender, b.DateOfBirth, b.MobileNumber, b.Email,
		b.AddressLine1, b.AddressLine2, b.City, b.District, b.State, b.PinCode,
		b.BankName, b.BankBranch, b.IFSCCode,
		b.BankAccount.Ciphertext, b.BankAccount.Masked,
		b.Aadhaar.Ciphertext, b.Aadhaar.Masked, b.PAN.Ciphertext, b.PAN.Masked,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update beneficiary: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, beneficiaryID id.BeneficiaryID, summary models.ChangeRequestSummary) error {
	query := `
		UPDATE beneficiaries SET
			last_change_request_id = $2,
			last_change_request_status = $3,
			last_change_request_reviewer_id = $4,
			last_change_request_at = $5,
			change_requests_submitted = $6,
			change_requests_approved = $7
		WHERE id = $1
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		int64(beneficiaryID),
		nullInt64(int64(summary.LastRequestID)),
		summary.LastStatus,
		nullInt64(int64(summary.LastReviewerID)),
		summary.LastAt,
		summary.Submitted,
		summary.Approved,
	)
	if err != nil {
		return fmt.Errorf("update beneficiary summary: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) ListDependents(ctx context.Context, beneficiaryID id.BeneficiaryID, activeOnly bool) ([]*models.Dependent, error) {
	query := `SELECT ` + dependentColumns + ` FROM dependents WHERE beneficiary_id = $1 AND (is_active OR NOT $2) ORDER BY id`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, int64(beneficiaryID), activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	defer rows.Close()

	var out []*models.Dependent
	for rows.Next() {
		d, err := scanDependent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindDependent(ctx context.Context, dependentID id.DependentID) (*models.Dependent, error) {
	query := `SELECT ` + dependentColumns + ` FROM dependents WHERE id = $1`
	d, err := scanDependent(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, int64(dependentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find dependent: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) InsertDependent(ctx context.Context, d *models.Dependent) error {
	query := `
		INSERT INTO dependents (
			beneficiary_id, full_name, relationship, gender, date_of_birth, city,
			is_alive, health_status, aadhaar_encrypted, aadhaar_masked, is_active,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	var newID int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query,
		int64(d.BeneficiaryID), d.FullName, d.Relationship, d.Gender, d.DateOfBirth, d.City,
		d.IsAlive, d.HealthStatus, d.Aadhaar.Ciphertext, d.Aadhaar.Masked, d.IsActive,
		d.CreatedAt, d.UpdatedAt,
	).Scan(&newID)
	if err != nil {
		return fmt.Errorf("insert dependent: %w", err)
	}
	d.ID = id.DependentID(newID)
	return nil
}

func (s *PostgresStore) UpdateDependent(ctx context.Context, d *models.Dependent) error {
	query := `
		UPDATE dependents SET
			full_name = $2, relationship = $3, gender = $4, date_of_birth = $5, city = $6,
			is_alive = $7, health_status = $8, aadhaar_encrypted = $9, aadhaar_masked = $10,
			is_active = $11, deleted_at = $12, deleted_by = $13, restored_at = $14, restored_by = $15,
			updated_at = $16
		WHERE id = $1
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		int64(d.ID),
		d.FullName, d.Relationship, d.Gender, d.DateOfBirth, d.City,
		d.IsAlive, d.HealthStatus, d.Aadhaar.Ciphertext, d.Aadhaar.Masked,
		d.IsActive, d.DeletedAt, nullInt64(int64(d.DeletedBy)), d.RestoredAt, nullInt64(int64(d.RestoredBy)),
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update dependent: %w", err)
	}
	return requireAffected(res)
}

// Shortlist returns live rows whose masked identifier equals masked. The
// masked columns are indexed; ciphertext is returned for decrypt-and-compare.
func (s *PostgresStore) Shortlist(ctx context.Context, kind models.IdentifierKind, masked string) ([]models.Candidate, error) {
	var query string
	switch kind {
	case models.NationalID:
		query = `
			SELECT id, 0, aadhaar_encrypted FROM beneficiaries
			WHERE aadhaar_masked = $1 AND aadhaar_encrypted <> ''
			UNION ALL
			SELECT beneficiary_id, id, aadhaar_encrypted FROM dependents
			WHERE aadhaar_masked = $1 AND aadhaar_encrypted <> '' AND is_active
		`
	case models.TaxID:
		query = `
			SELECT id, 0, pan_encrypted FROM beneficiaries
			WHERE pan_masked = $1 AND pan_encrypted <> ''
		`
	default:
		return nil, fmt.Errorf("unknown identifier kind %q", kind)
	}

	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, masked)
	if err != nil {
		return nil, fmt.Errorf("shortlist %s: %w", kind, err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var (
			benID, depID int64
			c            models.Candidate
		)
		if err := rows.Scan(&benID, &depID, &c.Ciphertext); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.BeneficiaryID = id.BeneficiaryID(benID)
		c.DependentID = id.DependentID(depID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBeneficiary(row rowScanner) (*models.Beneficiary, error) {
	var (
		b                        models.Beneficiary
		benID                    int64
		lastID, lastReviewer     sql.NullInt64
		lastAt                   sql.NullTime
		submitted, approvedCount int
	)
	err := row.Scan(
		&benID, &b.FullName, &b.Gender, &b.DateOfBirth, &b.MobileNumber, &b.Email,
		&b.AddressLine1, &b.AddressLine2, &b.City, &b.District, &b.State, &b.PinCode,
		&b.BankName, &b.BankBranch, &b.IFSCCode,
		&b.BankAccount.Ciphertext, &b.BankAccount.Masked,
		&b.Aadhaar.Ciphertext, &b.Aadhaar.Masked, &b.PAN.Ciphertext, &b.PAN.Masked,
		&lastID, &b.Summary.LastStatus, &lastReviewer,
		&lastAt, &submitted, &approvedCount,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ID = id.BeneficiaryID(benID)
	b.Summary.LastRequestID = id.ChangeRequestID(lastID.Int64)
	b.Summary.LastReviewerID = id.UserID(lastReviewer.Int64)
	if lastAt.Valid {
		t := lastAt.Time
		b.Summary.LastAt = &t
	}
	b.Summary.Submitted = submitted
	b.Summary.Approved = approvedCount
	return &b, nil
}

func scanDependent(row rowScanner) (*models.Dependent, error) {
	var (
		d                     models.Dependent
		depID, benID          int64
		deletedBy, restoredBy sql.NullInt64
		deletedAt, restoredAt sql.NullTime
	)
	err := row.Scan(
		&depID, &benID, &d.FullName, &d.Relationship, &d.Gender, &d.DateOfBirth, &d.City,
		&d.IsAlive, &d.HealthStatus, &d.Aadhaar.Ciphertext, &d.Aadhaar.Masked, &d.IsActive,
		&deletedAt, &deletedBy, &restoredAt, &restoredBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.ID = id.DependentID(depID)
	d.BeneficiaryID = id.BeneficiaryID(benID)
	d.DeletedAt = timePtr(deletedAt)
	d.DeletedBy = id.UserID(deletedBy.Int64)
	d.RestoredAt = timePtr(restoredAt)
	d.RestoredBy = id.UserID(restoredBy.Int64)
	return &d, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
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
