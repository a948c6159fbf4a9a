package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-placement-api/internal/models"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

func TestMemoryBatchRepositoryConcurrentReservationsNeverOversell(t *testing.T) {
	repo := NewMemoryBatchRepository()
	ctx := context.Background()
	batch := fixtureBatch()
	batch.Capacity = 5
	require.NoError(t, repo.Create(ctx, &batch))
	now := batch.RegistrationStart.Add(time.Minute)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[models.ReserveOutcome]int{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := repo.TryReserveSeat(ctx, batch.ID, now)
			assert.NoError(t, err)
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, outcomes[models.ReserveOK])
	assert.Equal(t, 45, outcomes[models.ReserveFull])
	stored, err := repo.FindByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.AllocatedSeats)
}

func TestMemoryBatchRepositoryReserveOutcomes(t *testing.T) {
	repo := NewMemoryBatchRepository()
	ctx := context.Background()
	batch := fixtureBatch()
	batch.Capacity = 1
	require.NoError(t, repo.Create(ctx, &batch))

	outcome, err := repo.TryReserveSeat(ctx, batch.ID, batch.RegistrationStart.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.ReserveClosed, outcome)

	outcome, err = repo.TryReserveSeat(ctx, batch.ID, batch.RegistrationEnd)
	require.NoError(t, err)
	assert.Equal(t, models.ReserveOK, outcome)

	outcome, err = repo.TryReserveSeat(ctx, "missing", batch.RegistrationEnd)
	require.NoError(t, err)
	assert.Equal(t, models.ReserveNotFound, outcome)

	require.NoError(t, repo.Retire(ctx, batch.ID))
	require.NoError(t, repo.ReleaseSeat(ctx, batch.ID))
	outcome, err = repo.TryReserveSeat(ctx, batch.ID, batch.RegistrationEnd)
	require.NoError(t, err)
	assert.Equal(t, models.ReserveClosed, outcome)
}

func TestMemoryBatchRepositoryReleaseFloorsAtZero(t *testing.T) {
	repo := NewMemoryBatchRepository()
	ctx := context.Background()
	batch := fixtureBatch()
	require.NoError(t, repo.Create(ctx, &batch))

	require.NoError(t, repo.ReleaseSeat(ctx, batch.ID))
	stored, err := repo.FindByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.AllocatedSeats)
	assert.ErrorIs(t, repo.ReleaseSeat(ctx, "missing"), sql.ErrNoRows)
}

func TestMemoryBatchRepositoryListPaginates(t *testing.T) {
	repo := NewMemoryBatchRepository()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b := fixtureBatch()
		b.ID = ""
		b.RegistrationStart = b.RegistrationStart.AddDate(0, 0, i)
		require.NoError(t, repo.Create(ctx, &b))
		if i == 0 {
			require.NoError(t, repo.Retire(ctx, b.ID))
		}
	}

	active, total, err := repo.List(ctx, models.BatchFilter{PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, active, 1)
	assert.False(t, active[0].Retired)

	all, total, err := repo.List(ctx, models.BatchFilter{IncludeRetired: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)
}

func TestMemoryInternshipRepositoryVersionCheck(t *testing.T) {
	repo := NewMemoryInternshipRepository()
	ctx := context.Background()
	in := models.Internship{StudentID: "stu-1", CompanyID: "co-1"}
	require.NoError(t, repo.Create(ctx, &in))
	assert.Equal(t, 1, in.Version)

	first, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)

	first.Status = models.InternshipApproved
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = models.InternshipRejected
	assert.ErrorIs(t, repo.Update(ctx, second), appErrors.ErrStaleVersion)

	stored, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InternshipApproved, stored.Status)
}

func TestMemoryInternshipRepositoryHeldSeatUniqueness(t *testing.T) {
	repo := NewMemoryInternshipRepository()
	ctx := context.Background()
	batchID := "batch-1"

	a := models.Internship{StudentID: "stu-1", CompanyID: "co-1"}
	b := models.Internship{StudentID: "stu-1", CompanyID: "co-2"}
	require.NoError(t, repo.Create(ctx, &a))
	require.NoError(t, repo.Create(ctx, &b))

	a.BatchID, a.SeatHeld = &batchID, true
	require.NoError(t, repo.Update(ctx, &a))

	held, err := repo.HasHeldSeat(ctx, "stu-1", batchID, b.ID)
	require.NoError(t, err)
	assert.True(t, held)
	held, err = repo.HasHeldSeat(ctx, "stu-1", batchID, a.ID)
	require.NoError(t, err)
	assert.False(t, held)

	b.BatchID, b.SeatHeld = &batchID, true
	assert.ErrorIs(t, repo.Update(ctx, &b), appErrors.ErrDuplicateEnrollment)
	assert.Equal(t, 1, repo.HeldSeats(batchID))

	a.SeatHeld = false
	require.NoError(t, repo.Update(ctx, &a))
	require.NoError(t, repo.Update(ctx, &b))
	assert.Equal(t, 1, repo.HeldSeats(batchID))
}

func TestMemoryInternshipRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryInternshipRepository()
	ctx := context.Background()
	batchID := "batch-1"
	in := models.Internship{StudentID: "stu-1", CompanyID: "co-1", BatchID: &batchID}
	require.NoError(t, repo.Create(ctx, &in))

	got, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)
	*got.BatchID = "tampered"

	again, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", again.BatchRef())
}

func TestMemoryEvaluationRepositoryLastWriterWins(t *testing.T) {
	repo := NewMemoryEvaluationRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	first := &models.EvaluationRecord{InternshipID: "int-1", EvaluatorRole: models.EvaluatorMentor, OverallScore: 7, UpdatedAt: t0}
	applied, err := repo.Upsert(ctx, first)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, first.Version)

	newer := &models.EvaluationRecord{InternshipID: "int-1", EvaluatorRole: models.EvaluatorMentor, OverallScore: 9, UpdatedAt: t0.Add(time.Minute)}
	applied, err = repo.Upsert(ctx, newer)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, first.ID, newer.ID)
	assert.Equal(t, 2, newer.Version)

	stale := &models.EvaluationRecord{InternshipID: "int-1", EvaluatorRole: models.EvaluatorMentor, OverallScore: 1, UpdatedAt: t0}
	applied, err = repo.Upsert(ctx, stale)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindByKey(ctx, "int-1", models.EvaluatorMentor)
	require.NoError(t, err)
	assert.InDelta(t, 9, stored.OverallScore, 1e-9)

	_, err = repo.FindByKey(ctx, "int-1", models.EvaluatorSelf)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryEvaluationRepositoryListInRoleOrder(t *testing.T) {
	repo := NewMemoryEvaluationRepository()
	ctx := context.Background()
	for _, role := range []models.EvaluatorRole{models.EvaluatorSelf, models.EvaluatorMentor, models.EvaluatorTeacher} {
		_, err := repo.Upsert(ctx, &models.EvaluationRecord{InternshipID: "int-1", EvaluatorRole: role})
		require.NoError(t, err)
	}

	records, err := repo.ListByInternship(ctx, "int-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.EvaluatorMentor, records[0].EvaluatorRole)
	assert.Equal(t, models.EvaluatorTeacher, records[1].EvaluatorRole)
	assert.Equal(t, models.EvaluatorSelf, records[2].EvaluatorRole)

	empty, err := repo.ListByInternship(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
