package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-placement-api/internal/models"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

type batchRepository interface {
	Create(ctx context.Context, batch *models.Batch) error
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	TryReserveSeat(ctx context.Context, id string, now time.Time) (models.ReserveOutcome, error)
	ReleaseSeat(ctx context.Context, id string) error
	Retire(ctx context.Context, id string) error
}

// CreateBatchRequest describes a new intake period.
type CreateBatchRequest struct {
	Name              string    `json:"name" validate:"omitempty,max=120"`
	Capacity          int       `json:"capacity"`
	RegistrationStart time.Time `json:"registration_start" validate:"required"`
	RegistrationEnd   time.Time `json:"registration_end" validate:"required"`
	InternshipStart   time.Time `json:"internship_start" validate:"required"`
	InternshipEnd     time.Time `json:"internship_end" validate:"required"`
}

// BatchService is the registry of batches and the owner of their seat counters.
type BatchService struct {
	repo      batchRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBatchService constructs BatchService.
func NewBatchService(repo batchRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// CreateBatch validates the windows and capacity and stores a batch with no seats taken.
func (s *BatchService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*models.BatchView, error) {
	if req.Capacity <= 0 {
		return nil, appErrors.ErrInvalidCapacity
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if req.RegistrationStart.After(req.RegistrationEnd) ||
		req.RegistrationEnd.After(req.InternshipStart) ||
		req.InternshipStart.After(req.InternshipEnd) {
		return nil, appErrors.ErrInvalidWindow
	}

	now := s.now().UTC()
	batch := &models.Batch{
		Name:              req.Name,
		Capacity:          req.Capacity,
		RegistrationStart: req.RegistrationStart.UTC(),
		RegistrationEnd:   req.RegistrationEnd.UTC(),
		InternshipStart:   req.InternshipStart.UTC(),
		InternshipEnd:     req.InternshipEnd.UTC(),
		CreatedAt:         now,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	s.logger.Info("batch created", zap.String("batch_id", batch.ID), zap.Int("capacity", batch.Capacity))
	view := batch.View(now)
	return &view, nil
}

// GetBatch returns the batch with fields derived against now.
func (s *BatchService) GetBatch(ctx context.Context, id string, now time.Time) (*models.BatchView, error) {
	batch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	view := batch.View(now)
	return &view, nil
}

// ListBatches returns batch views with pagination metadata.
func (s *BatchService) ListBatches(ctx context.Context, filter models.BatchFilter, now time.Time) ([]models.BatchView, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	views := make([]models.BatchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, b.View(now))
	}
	page, size := pageBounds(filter.Page, filter.PageSize)
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// TryReserveSeat atomically takes one seat if the batch accepts reservations at now.
func (s *BatchService) TryReserveSeat(ctx context.Context, id string, now time.Time) (models.ReserveOutcome, error) {
	outcome, err := s.repo.TryReserveSeat(ctx, id, now)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
	}
	s.metrics.RecordSeatReservation(outcome)
	return outcome, nil
}

// ReleaseSeat gives one seat back, never dropping below zero.
func (s *BatchService) ReleaseSeat(ctx context.Context, id string) error {
	if err := s.repo.ReleaseSeat(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
	}
	return nil
}

// RetireBatch closes the batch to new reservations. Held seats are unaffected.
func (s *BatchService) RetireBatch(ctx context.Context, id string) (*models.BatchView, error) {
	if err := s.repo.Retire(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire batch")
	}
	s.logger.Info("batch retired", zap.String("batch_id", id))
	return s.GetBatch(ctx, id, s.now().UTC())
}

func (s *BatchService) find(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
