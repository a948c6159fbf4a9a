package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-placement-api/internal/models"
)

const batchColumns = `id, name, capacity, allocated_seats, registration_start, registration_end,
        internship_start, internship_end, retired, created_at, updated_at`

// BatchRepository persists batches and owns the allocated seat counter.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch with zero allocated seats.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = batch.CreatedAt
	batch.AllocatedSeats = 0
	const query = `INSERT INTO batches (id, name, capacity, allocated_seats, registration_start, registration_end,
        internship_start, internship_end, retired, created_at, updated_at)
        VALUES (:id, :name, :capacity, :allocated_seats, :registration_start, :registration_end,
        :internship_start, :internship_end, :retired, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// FindByID returns a batch or sql.ErrNoRows.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// List returns batches ordered by registration start, newest first.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	page, size := normalizePage(filter.Page, filter.PageSize)
	clause := " WHERE retired = FALSE"
	if filter.IncludeRetired {
		clause = ""
	}
	query := fmt.Sprintf(`SELECT %s FROM batches%s ORDER BY registration_start DESC, id LIMIT %d OFFSET %d`,
		batchColumns, clause, size, (page-1)*size)
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM batches"+clause); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// TryReserveSeat increments allocated_seats in a single conditional UPDATE. When the
// row is not updated a follow-up read classifies why; the counter is never touched then.
func (r *BatchRepository) TryReserveSeat(ctx context.Context, id string, now time.Time) (models.ReserveOutcome, error) {
	const query = `UPDATE batches SET allocated_seats = allocated_seats + 1, updated_at = $2
        WHERE id = $1 AND retired = FALSE AND allocated_seats < capacity
        AND registration_start <= $2 AND registration_end >= $2
        RETURNING allocated_seats`
	var allocated int
	err := r.db.GetContext(ctx, &allocated, query, id, now)
	if err == nil {
		return models.ReserveOK, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reserve seat: %w", err)
	}
	batch, err := r.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ReserveNotFound, nil
		}
		return "", fmt.Errorf("inspect batch after reserve: %w", err)
	}
	return classifyRefusal(*batch, now), nil
}

// ReleaseSeat decrements allocated_seats, floored at zero.
func (r *BatchRepository) ReleaseSeat(ctx context.Context, id string) error {
	const query = `UPDATE batches SET allocated_seats = GREATEST(allocated_seats - 1, 0), updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Retire soft-retires a batch so it accepts no further reservations.
func (r *BatchRepository) Retire(ctx context.Context, id string) error {
	const query = `UPDATE batches SET retired = TRUE, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("retire batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func classifyRefusal(batch models.Batch, now time.Time) models.ReserveOutcome {
	if batch.Retired || !batch.IsRegistrationOpen(now) {
		return models.ReserveClosed
	}
	return models.ReserveFull
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
