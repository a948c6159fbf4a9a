package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/internal/repository"
	"github.com/noah-isme/internship-placement-api/pkg/config"
)

var fixtureNow = time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
}

func (p *recordingPublisher) Publish(event models.LifecycleEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []models.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.LifecycleEvent(nil), p.events...)
}

// placementFixture wires the services over the in-memory stores with a fixed clock.
type placementFixture struct {
	batchRepo      *repository.MemoryBatchRepository
	internshipRepo *repository.MemoryInternshipRepository
	evaluationRepo *repository.MemoryEvaluationRepository
	batches        *BatchService
	allocator      *EnrollmentAllocator
	evaluations    *EvaluationService
	internships    *InternshipService
	events         *recordingPublisher
	model          *ScoreModel
}

func newPlacementFixture(t *testing.T) *placementFixture {
	t.Helper()
	return newPlacementFixtureWithWeights(t, config.DefaultEvaluation())
}

func newPlacementFixtureWithWeights(t *testing.T, cfg config.EvaluationConfig) *placementFixture {
	t.Helper()
	f := &placementFixture{
		batchRepo:      repository.NewMemoryBatchRepository(),
		internshipRepo: repository.NewMemoryInternshipRepository(),
		evaluationRepo: repository.NewMemoryEvaluationRepository(),
		events:         &recordingPublisher{},
	}
	clock := func() time.Time { return fixtureNow }

	f.batches = NewBatchService(f.batchRepo, nil, nil, nil)
	f.batches.now = clock
	f.allocator = NewEnrollmentAllocator(f.batches, f.internshipRepo, nil, nil, nil)
	f.allocator.now = clock

	model, err := NewScoreModel(cfg.Sections)
	require.NoError(t, err)
	f.model = model
	weights, err := NewRoleWeights(cfg)
	require.NoError(t, err)
	f.evaluations, err = NewEvaluationService(f.evaluationRepo, f.internshipRepo, SameRubric(model), weights, nil, 0, nil, nil, nil)
	require.NoError(t, err)
	f.evaluations.now = clock

	f.internships = NewInternshipService(f.internshipRepo, f.batches, f.allocator, f.evaluations, f.events, nil, nil, nil)
	f.internships.now = clock
	return f
}

// openBatch creates a batch whose registration window contains fixtureNow.
func (f *placementFixture) openBatch(t *testing.T, capacity int) *models.BatchView {
	t.Helper()
	view, err := f.batches.CreateBatch(context.Background(), CreateBatchRequest{
		Name:              "intake",
		Capacity:          capacity,
		RegistrationStart: fixtureNow.AddDate(0, 0, -4),
		RegistrationEnd:   fixtureNow.AddDate(0, 0, 6),
		InternshipStart:   fixtureNow.AddDate(0, 1, 0),
		InternshipEnd:     fixtureNow.AddDate(0, 4, 0),
	})
	require.NoError(t, err)
	return view
}

func (f *placementFixture) approved(t *testing.T, studentID string) *models.Internship {
	t.Helper()
	ctx := context.Background()
	in, err := f.internships.RequestInternship(ctx, RequestInternshipRequest{StudentID: studentID, CompanyID: "acme"}, Actor{})
	require.NoError(t, err)
	in, err = f.internships.Approve(ctx, in.ID, Actor{})
	require.NoError(t, err)
	return in
}

func (f *placementFixture) assigned(t *testing.T, studentID, batchID string) *models.Internship {
	t.Helper()
	in := f.approved(t, studentID)
	in, err := f.internships.Assign(context.Background(), in.ID, AssignRequest{BatchID: batchID}, Actor{})
	require.NoError(t, err)
	return in
}

func (f *placementFixture) allocated(t *testing.T, batchID string) int {
	t.Helper()
	batch, err := f.batchRepo.FindByID(context.Background(), batchID)
	require.NoError(t, err)
	return batch.AllocatedSeats
}

// requireSeatInvariant checks that held seats account for the whole counter.
func (f *placementFixture) requireSeatInvariant(t *testing.T, batchID string) {
	t.Helper()
	batch, err := f.batchRepo.FindByID(context.Background(), batchID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, batch.AllocatedSeats, 0)
	require.LessOrEqual(t, batch.AllocatedSeats, batch.Capacity)
	require.Equal(t, f.internshipRepo.HeldSeats(batchID), batch.AllocatedSeats)
}
