package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/internship-placement-api/internal/models"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

const (
	internshipColumns = `id, student_id, company_id, batch_id, status, seat_held, final_score, version,
        requested_at, approved_at, rejected_at, assigned_at, started_at, completed_at, cancelled_at, updated_at`

	// heldSeatIndex enforces one held seat per (student_id, batch_id).
	heldSeatIndex = "uq_internships_held_seat"

	pqUniqueViolation = "23505"
)

// InternshipRepository persists placement records with optimistic versioning.
type InternshipRepository struct {
	db *sqlx.DB
}

// NewInternshipRepository constructs the repository.
func NewInternshipRepository(db *sqlx.DB) *InternshipRepository {
	return &InternshipRepository{db: db}
}

// Create inserts a new internship at version 1.
func (r *InternshipRepository) Create(ctx context.Context, internship *models.Internship) error {
	if internship.ID == "" {
		internship.ID = uuid.NewString()
	}
	if internship.RequestedAt.IsZero() {
		internship.RequestedAt = time.Now().UTC()
	}
	if internship.Status == "" {
		internship.Status = models.InternshipPending
	}
	internship.Version = 1
	internship.UpdatedAt = internship.RequestedAt
	query := `INSERT INTO internships (` + internshipColumns + `)
        VALUES (:id, :student_id, :company_id, :batch_id, :status, :seat_held, :final_score, :version,
        :requested_at, :approved_at, :rejected_at, :assigned_at, :started_at, :completed_at, :cancelled_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, internship); err != nil {
		return fmt.Errorf("create internship: %w", err)
	}
	return nil
}

// FindByID returns an internship or sql.ErrNoRows.
func (r *InternshipRepository) FindByID(ctx context.Context, id string) (*models.Internship, error) {
	query := `SELECT ` + internshipColumns + ` FROM internships WHERE id = $1`
	var internship models.Internship
	if err := r.db.GetContext(ctx, &internship, query, id); err != nil {
		return nil, err
	}
	return &internship, nil
}

// List returns internships matching the filter, newest request first.
func (r *InternshipRepository) List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, int, error) {
	var conditions []string
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		conditions = append(conditions, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	page, size := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM internships%s ORDER BY requested_at DESC, id LIMIT %d OFFSET %d`,
		internshipColumns, clause, size, (page-1)*size)

	var internships []models.Internship
	if err := r.db.SelectContext(ctx, &internships, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list internships: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM internships"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count internships: %w", err)
	}
	return internships, total, nil
}

// Update writes the mutable fields when the stored version still matches internship.Version.
// On success internship.Version is advanced; a mismatch yields ErrStaleVersion and a
// second held seat for the same student and batch yields ErrDuplicateEnrollment.
func (r *InternshipRepository) Update(ctx context.Context, internship *models.Internship) error {
	internship.UpdatedAt = time.Now().UTC()
	const query = `UPDATE internships SET batch_id = :batch_id, status = :status, seat_held = :seat_held,
        final_score = :final_score, approved_at = :approved_at, rejected_at = :rejected_at,
        assigned_at = :assigned_at, started_at = :started_at, completed_at = :completed_at,
        cancelled_at = :cancelled_at, updated_at = :updated_at, version = version + 1
        WHERE id = :id AND version = :version`
	res, err := r.db.NamedExecContext(ctx, query, internship)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation && pqErr.Constraint == heldSeatIndex {
			return appErrors.ErrDuplicateEnrollment
		}
		return fmt.Errorf("update internship: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update internship rows: %w", err)
	}
	if n == 0 {
		return appErrors.ErrStaleVersion
	}
	internship.Version++
	return nil
}

// HasHeldSeat reports whether another internship of the student holds a seat in the batch.
func (r *InternshipRepository) HasHeldSeat(ctx context.Context, studentID, batchID, excludeID string) (bool, error) {
	const query = `SELECT 1 FROM internships WHERE student_id = $1 AND batch_id = $2 AND seat_held = TRUE AND id <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, batchID, excludeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check held seat: %w", err)
	}
	return true, nil
}
