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

type internshipRepository interface {
	Create(ctx context.Context, internship *models.Internship) error
	FindByID(ctx context.Context, id string) (*models.Internship, error)
	List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, int, error)
	Update(ctx context.Context, internship *models.Internship) error
}

type batchReader interface {
	GetBatch(ctx context.Context, id string, now time.Time) (*models.BatchView, error)
}

type seatAllocator interface {
	Enroll(ctx context.Context, internship *models.Internship, batchID string, commit CommitFunc) error
	Withdraw(ctx context.Context, internship *models.Internship, commit CommitFunc) error
}

type aggregateReader interface {
	ComputeAggregate(ctx context.Context, internshipID string) (*models.AggregateScore, error)
}

// sharedRecordLocks is implemented by readers whose writes must not interleave with
// transitions of the same internship.
type sharedRecordLocks interface {
	recordLocks() *keyedMutex
}

type eventPublisher interface {
	Publish(event models.LifecycleEvent)
}

// RequestInternshipRequest opens a placement request.
type RequestInternshipRequest struct {
	StudentID string  `json:"student_id" validate:"required,max=64"`
	CompanyID string  `json:"company_id" validate:"required,max=64"`
	BatchID   *string `json:"batch_id" validate:"omitempty,max=64"`
}

// AssignRequest selects the batch for an approved internship. An empty BatchID falls
// back to the preference given at request time.
type AssignRequest struct {
	BatchID string `json:"batch_id" validate:"omitempty,max=64"`
}

// InternshipService drives the placement state machine.
type InternshipService struct {
	repo       internshipRepository
	batches    batchReader
	allocator  seatAllocator
	aggregates aggregateReader
	events     eventPublisher
	metrics    *MetricsService
	locks      *keyedMutex
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewInternshipService constructs InternshipService.
func NewInternshipService(repo internshipRepository, batches batchReader, allocator seatAllocator, aggregates aggregateReader, events eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *InternshipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := newKeyedMutex()
	if shared, ok := aggregates.(sharedRecordLocks); ok {
		locks = shared.recordLocks()
	}
	return &InternshipService{
		repo:       repo,
		batches:    batches,
		allocator:  allocator,
		aggregates: aggregates,
		events:     events,
		metrics:    metrics,
		locks:      locks,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// RequestInternship creates a PENDING internship.
func (s *InternshipService) RequestInternship(ctx context.Context, req RequestInternshipRequest, actor Actor) (*models.Internship, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid internship request")
	}
	if actor.Role == models.RoleStudent && actor.ID != req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only request for themselves")
	}
	now := s.now().UTC()
	if req.BatchID != nil && *req.BatchID != "" {
		if _, err := s.batches.GetBatch(ctx, *req.BatchID, now); err != nil {
			return nil, err
		}
	} else {
		req.BatchID = nil
	}

	internship := &models.Internship{
		StudentID:   req.StudentID,
		CompanyID:   req.CompanyID,
		BatchID:     req.BatchID,
		Status:      models.InternshipPending,
		RequestedAt: now,
	}
	if err := s.repo.Create(ctx, internship); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create internship")
	}
	s.publish(internship, models.EventRequest, "", models.InternshipPending, actor, now)
	return internship, nil
}

// Get returns one internship.
func (s *InternshipService) Get(ctx context.Context, id string) (*models.Internship, error) {
	return s.load(ctx, id)
}

// List returns internships with pagination metadata.
func (s *InternshipService) List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown internship status")
	}
	internships, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list internships")
	}
	page, size := pageBounds(filter.Page, filter.PageSize)
	return internships, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Approve moves PENDING to APPROVED.
func (s *InternshipService) Approve(ctx context.Context, id string, actor Actor) (*models.Internship, error) {
	return s.transition(ctx, id, models.EventApprove, actor, s.commitAt)
}

// Reject moves PENDING to REJECTED.
func (s *InternshipService) Reject(ctx context.Context, id string, actor Actor) (*models.Internship, error) {
	return s.transition(ctx, id, models.EventReject, actor, s.commitAt)
}

// Start moves ASSIGNED to IN_PROGRESS.
func (s *InternshipService) Start(ctx context.Context, id string, actor Actor) (*models.Internship, error) {
	return s.transition(ctx, id, models.EventStart, actor, s.commitAt)
}

// Assign reserves a seat in the batch and moves APPROVED to ASSIGNED in one step.
func (s *InternshipService) Assign(ctx context.Context, id string, req AssignRequest, actor Actor) (*models.Internship, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assign payload")
	}
	return s.transition(ctx, id, models.EventAssign, actor, func(ctx context.Context, in *models.Internship, to models.InternshipStatus, now time.Time) error {
		batchID := req.BatchID
		if batchID == "" {
			batchID = in.BatchRef()
		}
		if batchID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "batch id is required")
		}
		batch, err := s.batches.GetBatch(ctx, batchID, now)
		if err != nil {
			return err
		}
		if batch.Retired || !batch.IsRegistrationOpen {
			return appErrors.ErrRegistrationClosed
		}
		return s.allocator.Enroll(ctx, in, batchID, func(ctx context.Context, in *models.Internship) error {
			return s.commitAt(ctx, in, to, now)
		})
	})
}

// Complete moves IN_PROGRESS to COMPLETED and records the aggregate, read from storage
// under the record lock, as the final score. The seat stays held.
func (s *InternshipService) Complete(ctx context.Context, id string, actor Actor) (*models.Internship, error) {
	return s.transition(ctx, id, models.EventComplete, actor, func(ctx context.Context, in *models.Internship, to models.InternshipStatus, now time.Time) error {
		aggregate, err := s.aggregates.ComputeAggregate(ctx, in.ID)
		if err != nil {
			return err
		}
		in.FinalScore = nil
		if aggregate.Graded && aggregate.Score != nil {
			score := *aggregate.Score
			in.FinalScore = &score
		}
		return s.commitAt(ctx, in, to, now)
	})
}

// Cancel moves any active internship to CANCELLED and frees its seat. Cancelling a
// cancelled internship returns it unchanged.
func (s *InternshipService) Cancel(ctx context.Context, id string, actor Actor) (*models.Internship, error) {
	return s.transition(ctx, id, models.EventCancel, actor, func(ctx context.Context, in *models.Internship, to models.InternshipStatus, now time.Time) error {
		return s.allocator.Withdraw(ctx, in, func(ctx context.Context, in *models.Internship) error {
			return s.commitAt(ctx, in, to, now)
		})
	})
}

type applyFunc func(ctx context.Context, in *models.Internship, to models.InternshipStatus, now time.Time) error

// transition serializes events per internship, applies the guard, and publishes the
// committed change once the record lock is released. apply must persist the record or
// leave storage untouched.
func (s *InternshipService) transition(ctx context.Context, id string, event models.InternshipEvent, actor Actor, apply applyFunc) (*models.Internship, error) {
	in, committed, err := s.applyLocked(ctx, id, event, actor, apply)
	if err != nil {
		return nil, err
	}
	if committed != nil && s.events != nil {
		s.events.Publish(*committed)
	}
	return in, nil
}

// applyLocked runs one event under the record lock. A nil event means nothing changed.
func (s *InternshipService) applyLocked(ctx context.Context, id string, event models.InternshipEvent, actor Actor, apply applyFunc) (*models.Internship, *models.LifecycleEvent, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	in, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeEvent(actor, in, event); err != nil {
		return nil, nil, err
	}
	from := in.Status
	to, err := NextStatus(from, event)
	if err != nil {
		return nil, nil, err
	}
	if event == models.EventCancel && from == models.InternshipCancelled {
		return in, nil, nil
	}

	now := s.now().UTC()
	if err := apply(ctx, in, to, now); err != nil {
		s.logger.Warn("internship transition refused",
			zap.String("internship_id", id), zap.String("event", string(event)), zap.String("from", string(from)), zap.Error(err))
		return nil, nil, err
	}
	s.metrics.RecordTransition(event, from, to)
	s.logger.Info("internship transitioned",
		zap.String("internship_id", id), zap.String("event", string(event)), zap.String("from", string(from)), zap.String("to", string(to)))
	committed := lifecycleEvent(in, event, from, to, actor, now)
	return in, &committed, nil
}

// commitAt stamps the reached state and writes the record under its version check.
func (s *InternshipService) commitAt(ctx context.Context, in *models.Internship, to models.InternshipStatus, now time.Time) error {
	stamp(in, to, now)
	if err := s.repo.Update(ctx, in); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "internship not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update internship")
	}
	return nil
}

func (s *InternshipService) load(ctx context.Context, id string) (*models.Internship, error) {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "internship not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load internship")
	}
	return in, nil
}

func (s *InternshipService) publish(in *models.Internship, event models.InternshipEvent, from, to models.InternshipStatus, actor Actor, at time.Time) {
	if s.events == nil {
		return
	}
	s.events.Publish(lifecycleEvent(in, event, from, to, actor, at))
}

func lifecycleEvent(in *models.Internship, event models.InternshipEvent, from, to models.InternshipStatus, actor Actor, at time.Time) models.LifecycleEvent {
	return models.LifecycleEvent{
		InternshipID: in.ID,
		StudentID:    in.StudentID,
		BatchID:      in.BatchRef(),
		Event:        event,
		From:         from,
		To:           to,
		ActorID:      actor.ID,
		OccurredAt:   at,
	}
}
