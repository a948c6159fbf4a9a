package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/internal/repository"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

func validBatchRequest() CreateBatchRequest {
	return CreateBatchRequest{
		Name:              "Spring",
		Capacity:          3,
		RegistrationStart: fixtureNow.AddDate(0, 0, -1),
		RegistrationEnd:   fixtureNow.AddDate(0, 0, 1),
		InternshipStart:   fixtureNow.AddDate(0, 1, 0),
		InternshipEnd:     fixtureNow.AddDate(0, 2, 0),
	}
}

func TestBatchServiceCreateValidates(t *testing.T) {
	repo := repository.NewMemoryBatchRepository()
	svc := NewBatchService(repo, nil, nil, nil)
	ctx := context.Background()

	for _, capacity := range []int{0, -2} {
		req := validBatchRequest()
		req.Capacity = capacity
		_, err := svc.CreateBatch(ctx, req)
		assert.ErrorIs(t, err, appErrors.ErrInvalidCapacity)
	}

	windows := []func(*CreateBatchRequest){
		func(r *CreateBatchRequest) { r.RegistrationEnd = r.RegistrationStart.Add(-time.Second) },
		func(r *CreateBatchRequest) { r.InternshipStart = r.RegistrationEnd.Add(-time.Second) },
		func(r *CreateBatchRequest) { r.InternshipEnd = r.InternshipStart.Add(-time.Second) },
	}
	for _, mutate := range windows {
		req := validBatchRequest()
		mutate(&req)
		_, err := svc.CreateBatch(ctx, req)
		assert.ErrorIs(t, err, appErrors.ErrInvalidWindow)
	}

	req := validBatchRequest()
	req.RegistrationStart = time.Time{}
	_, err := svc.CreateBatch(ctx, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, total, err := repo.List(ctx, models.BatchFilter{IncludeRetired: true})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestBatchServiceCreateAcceptsTouchingWindows(t *testing.T) {
	svc := NewBatchService(repository.NewMemoryBatchRepository(), nil, nil, nil)
	svc.now = func() time.Time { return fixtureNow }
	instant := fixtureNow

	view, err := svc.CreateBatch(context.Background(), CreateBatchRequest{
		Capacity: 1, RegistrationStart: instant, RegistrationEnd: instant, InternshipStart: instant, InternshipEnd: instant,
	})
	require.NoError(t, err)
	assert.True(t, view.IsRegistrationOpen)
	assert.True(t, view.IsActive)
	assert.Zero(t, view.AllocatedSeats)
	assert.Equal(t, 1, view.AvailableSeats)
}

func TestBatchServiceGetDerivesAgainstNow(t *testing.T) {
	svc := NewBatchService(repository.NewMemoryBatchRepository(), nil, nil, nil)
	ctx := context.Background()
	created, err := svc.CreateBatch(ctx, validBatchRequest())
	require.NoError(t, err)

	during, err := svc.GetBatch(ctx, created.ID, fixtureNow)
	require.NoError(t, err)
	assert.True(t, during.IsRegistrationOpen)
	assert.False(t, during.IsCompleted)

	after, err := svc.GetBatch(ctx, created.ID, created.InternshipEnd.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, after.IsRegistrationOpen)
	assert.True(t, after.IsCompleted)

	_, err = svc.GetBatch(ctx, "missing", fixtureNow)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBatchServiceReserveRelease(t *testing.T) {
	svc := NewBatchService(repository.NewMemoryBatchRepository(), NewMetricsService(), nil, nil)
	ctx := context.Background()
	req := validBatchRequest()
	req.Capacity = 1
	created, err := svc.CreateBatch(ctx, req)
	require.NoError(t, err)

	outcome, err := svc.TryReserveSeat(ctx, created.ID, fixtureNow)
	require.NoError(t, err)
	assert.Equal(t, models.ReserveOK, outcome)
	outcome, err = svc.TryReserveSeat(ctx, created.ID, fixtureNow)
	require.NoError(t, err)
	assert.Equal(t, models.ReserveFull, outcome)

	require.NoError(t, svc.ReleaseSeat(ctx, created.ID))
	require.NoError(t, svc.ReleaseSeat(ctx, created.ID))
	view, err := svc.GetBatch(ctx, created.ID, fixtureNow)
	require.NoError(t, err)
	assert.Zero(t, view.AllocatedSeats)

	assert.ErrorIs(t, svc.ReleaseSeat(ctx, "missing"), appErrors.ErrNotFound)
}

func TestBatchServiceRetireAndList(t *testing.T) {
	svc := NewBatchService(repository.NewMemoryBatchRepository(), nil, nil, nil)
	ctx := context.Background()
	a, err := svc.CreateBatch(ctx, validBatchRequest())
	require.NoError(t, err)
	_, err = svc.CreateBatch(ctx, validBatchRequest())
	require.NoError(t, err)

	retired, err := svc.RetireBatch(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, retired.Retired)
	assert.Zero(t, retired.AvailableSeats)

	views, pagination, err := svc.ListBatches(ctx, models.BatchFilter{}, fixtureNow)
	require.NoError(t, err)
	assert.Len(t, views, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	_, err = svc.RetireBatch(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
