package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/internship-placement-api/internal/models"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
	"github.com/noah-isme/internship-placement-api/pkg/jobs"
)

// JobSeatRelease is the job type for retried seat releases; the payload is the batch id.
const JobSeatRelease = "batch.seat_release"

type seatRegistry interface {
	TryReserveSeat(ctx context.Context, id string, now time.Time) (models.ReserveOutcome, error)
	ReleaseSeat(ctx context.Context, id string) error
}

type heldSeatChecker interface {
	HasHeldSeat(ctx context.Context, studentID, batchID, excludeID string) (bool, error)
}

type jobSubmitter interface {
	Submit(jobType string, payload interface{}) error
}

// CommitFunc persists the internship after the allocator has updated its seat fields.
type CommitFunc func(ctx context.Context, internship *models.Internship) error

// EnrollmentAllocator pairs every held seat with exactly one reserved unit of the
// batch counter. Seat changes and the caller's commit succeed or fail together.
type EnrollmentAllocator struct {
	seats    seatRegistry
	held     heldSeatChecker
	releases jobSubmitter
	locks    *keyedMutex
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewEnrollmentAllocator constructs the allocator. releases may be nil, in which case
// a failed release is logged and counted as lost.
func NewEnrollmentAllocator(seats seatRegistry, held heldSeatChecker, releases jobSubmitter, metrics *MetricsService, logger *zap.Logger) *EnrollmentAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentAllocator{
		seats:    seats,
		held:     held,
		releases: releases,
		locks:    newKeyedMutex(),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// SetReleaseQueue attaches the retry queue once it has been built.
func (a *EnrollmentAllocator) SetReleaseQueue(releases jobSubmitter) {
	a.releases = releases
}

// Enroll reserves a seat in batchID for internship and runs commit. When commit fails
// the seat is handed back and the internship's seat fields are restored.
func (a *EnrollmentAllocator) Enroll(ctx context.Context, internship *models.Internship, batchID string, commit CommitFunc) error {
	if batchID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "batch id is required")
	}
	if internship.SeatHeld {
		return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "internship already holds a seat")
	}
	unlock := a.locks.Lock(seatKey(internship.StudentID, batchID))
	defer unlock()

	taken, err := a.held.HasHeldSeat(ctx, internship.StudentID, batchID, internship.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check held seats")
	}
	if taken {
		return appErrors.ErrDuplicateEnrollment
	}

	outcome, err := a.seats.TryReserveSeat(ctx, batchID, a.now().UTC())
	if err != nil {
		return err
	}
	switch outcome {
	case models.ReserveOK:
	case models.ReserveFull:
		return appErrors.ErrBatchFull
	case models.ReserveClosed:
		return appErrors.ErrRegistrationClosed
	case models.ReserveNotFound:
		return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	default:
		return appErrors.Clone(appErrors.ErrInternal, "unexpected reservation outcome "+string(outcome))
	}

	prevBatch := internship.BatchID
	internship.BatchID = &batchID
	internship.SeatHeld = true
	if err := commit(ctx, internship); err != nil {
		internship.BatchID = prevBatch
		internship.SeatHeld = false
		a.release(ctx, batchID, internship.ID)
		return err
	}
	a.logger.Info("seat reserved", zap.String("internship_id", internship.ID), zap.String("batch_id", batchID))
	return nil
}

// Withdraw clears the internship's held seat, runs commit and then releases the seat.
// Without a held seat only commit runs, so repeated withdrawals never release twice.
func (a *EnrollmentAllocator) Withdraw(ctx context.Context, internship *models.Internship, commit CommitFunc) error {
	if !internship.SeatHeld {
		a.metrics.RecordSeatRelease(releaseSkipped)
		return commit(ctx, internship)
	}
	batchID := internship.BatchRef()
	unlock := a.locks.Lock(seatKey(internship.StudentID, batchID))
	defer unlock()

	internship.SeatHeld = false
	if err := commit(ctx, internship); err != nil {
		internship.SeatHeld = true
		return err
	}
	a.release(ctx, batchID, internship.ID)
	return nil
}

// ReleaseJobHandler processes JobSeatRelease jobs.
func (a *EnrollmentAllocator) ReleaseJobHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		batchID, ok := job.Payload.(string)
		if !ok || batchID == "" {
			a.logger.Error("malformed seat release job", zap.String("job_id", job.ID))
			return nil
		}
		if err := a.seats.ReleaseSeat(ctx, batchID); err != nil {
			if errors.Is(err, appErrors.ErrNotFound) {
				a.logger.Warn("seat release skipped, batch missing", zap.String("batch_id", batchID))
				return nil
			}
			return err
		}
		a.metrics.RecordSeatRelease(releaseOK)
		a.logger.Info("seat released on retry", zap.String("batch_id", batchID), zap.Int("attempt", job.Attempt))
		return nil
	}
}

// ReleaseExhausted is the queue's exhaustion hook: the seat stays counted.
func (a *EnrollmentAllocator) ReleaseExhausted(job jobs.Job, err error) {
	a.metrics.RecordSeatRelease(releaseLost)
	a.logger.Error("seat release abandoned, batch over-counts by one", zap.Any("batch_id", job.Payload), zap.Error(err))
}

func (a *EnrollmentAllocator) release(ctx context.Context, batchID, internshipID string) {
	err := a.seats.ReleaseSeat(ctx, batchID)
	if err == nil {
		a.metrics.RecordSeatRelease(releaseOK)
		a.logger.Info("seat released", zap.String("internship_id", internshipID), zap.String("batch_id", batchID))
		return
	}
	if errors.Is(err, appErrors.ErrNotFound) {
		a.logger.Warn("seat release on missing batch", zap.String("batch_id", batchID))
		return
	}
	a.logger.Warn("seat release failed, scheduling retry", zap.String("batch_id", batchID), zap.Error(err))
	if a.releases == nil {
		a.metrics.RecordSeatRelease(releaseLost)
		a.logger.Error("no release queue, batch over-counts by one", zap.String("batch_id", batchID))
		return
	}
	if qErr := a.releases.Submit(JobSeatRelease, batchID); qErr != nil {
		a.metrics.RecordSeatRelease(releaseLost)
		a.logger.Error("could not queue seat release", zap.String("batch_id", batchID), zap.Error(qErr))
		return
	}
	a.metrics.RecordSeatRelease(releaseRetry)
}

func seatKey(studentID, batchID string) string {
	return studentID + "/" + batchID
}
