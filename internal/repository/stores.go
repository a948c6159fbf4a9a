package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-placement-api/internal/models"
)

// BatchStore is implemented by every batch backend.
type BatchStore interface {
	Create(ctx context.Context, batch *models.Batch) error
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	TryReserveSeat(ctx context.Context, id string, now time.Time) (models.ReserveOutcome, error)
	ReleaseSeat(ctx context.Context, id string) error
	Retire(ctx context.Context, id string) error
}

// InternshipStore is implemented by every internship backend.
type InternshipStore interface {
	Create(ctx context.Context, internship *models.Internship) error
	FindByID(ctx context.Context, id string) (*models.Internship, error)
	List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, int, error)
	Update(ctx context.Context, internship *models.Internship) error
	HasHeldSeat(ctx context.Context, studentID, batchID, excludeID string) (bool, error)
}

// EvaluationStore is implemented by every evaluation backend.
type EvaluationStore interface {
	Upsert(ctx context.Context, rec *models.EvaluationRecord) (bool, error)
	FindByKey(ctx context.Context, internshipID string, role models.EvaluatorRole) (*models.EvaluationRecord, error)
	ListByInternship(ctx context.Context, internshipID string) ([]models.EvaluationRecord, error)
}

// Stores groups the three backends selected at startup.
type Stores struct {
	Batches     BatchStore
	Internships InternshipStore
	Evaluations EvaluationStore
}

// NewMemoryStores returns process-local stores.
func NewMemoryStores() Stores {
	return Stores{
		Batches:     NewMemoryBatchRepository(),
		Internships: NewMemoryInternshipRepository(),
		Evaluations: NewMemoryEvaluationRepository(),
	}
}

// NewSQLStores returns PostgreSQL-backed stores sharing db.
func NewSQLStores(db *sqlx.DB) Stores {
	return Stores{
		Batches:     NewBatchRepository(db),
		Internships: NewInternshipRepository(db),
		Evaluations: NewEvaluationRepository(db),
	}
}

var (
	_ BatchStore      = (*BatchRepository)(nil)
	_ BatchStore      = (*MemoryBatchRepository)(nil)
	_ InternshipStore = (*InternshipRepository)(nil)
	_ InternshipStore = (*MemoryInternshipRepository)(nil)
	_ EvaluationStore = (*EvaluationRepository)(nil)
	_ EvaluationStore = (*MemoryEvaluationRepository)(nil)
)
