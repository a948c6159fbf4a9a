package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/pkg/config"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

type fakeAggregateCache struct {
	mu          sync.Mutex
	entries     map[string]models.AggregateScore
	invalidated []string
}

func (c *fakeAggregateCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*models.AggregateScore)) = v
	return true, nil
}

func (c *fakeAggregateCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]models.AggregateScore)
	}
	c.entries[key] = value.(models.AggregateScore)
	return nil
}

func (c *fakeAggregateCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.invalidated = append(c.invalidated, keys...)
	return nil
}

func submit(t *testing.T, f *placementFixture, internshipID string, role models.EvaluatorRole, ratio float64) *models.EvaluationRecord {
	t.Helper()
	rec, err := f.evaluations.SubmitEvaluation(context.Background(), SubmitEvaluationRequest{
		InternshipID: internshipID, Role: role, Components: fullMarks(ratio), EvaluatorID: "who",
	})
	require.NoError(t, err)
	return rec
}

func TestAggregateMentorAndTeacherScenario(t *testing.T) {
	f := newPlacementFixture(t)
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)

	submit(t, f, in.ID, models.EvaluatorMentor, 0.8)
	submit(t, f, in.ID, models.EvaluatorTeacher, 0.9)

	aggregate, err := f.evaluations.GetAggregate(context.Background(), in.ID)
	require.NoError(t, err)
	require.True(t, aggregate.Graded)
	require.NotNil(t, aggregate.Score)
	assert.Equal(t, 8.44, *aggregate.Score)
	assert.Equal(t, 2, aggregate.Evaluations)
	require.Len(t, aggregate.Contributions, 2)
	assert.InDelta(t, 0.5/0.9, aggregate.Contributions[0].Weight, 1e-9)
	assert.InDelta(t, 0.4/0.9, aggregate.Contributions[1].Weight, 1e-9)
}

func TestAggregateMentorOnlyReturnsMentorScore(t *testing.T) {
	f := newPlacementFixture(t)
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)
	rec := submit(t, f, in.ID, models.EvaluatorMentor, 0.75)

	aggregate, err := f.evaluations.GetAggregate(context.Background(), in.ID)
	require.NoError(t, err)
	require.NotNil(t, aggregate.Score)
	assert.Equal(t, roundScore(rec.OverallScore), *aggregate.Score)
	assert.Equal(t, 1.0, aggregate.Contributions[0].Weight)
}

func TestAggregateWithoutEvaluationsIsUngraded(t *testing.T) {
	f := newPlacementFixture(t)
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)

	aggregate, err := f.evaluations.GetAggregate(context.Background(), in.ID)
	require.NoError(t, err)
	assert.False(t, aggregate.Graded)
	assert.Nil(t, aggregate.Score)
	assert.Zero(t, aggregate.Evaluations)

	_, err = f.evaluations.GetAggregate(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAggregateZeroWeightRoleIsExcluded(t *testing.T) {
	cfg := config.DefaultEvaluation()
	cfg.SelfWeight = 0
	f := newPlacementFixtureWithWeights(t, cfg)
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)
	submit(t, f, in.ID, models.EvaluatorSelf, 1)

	aggregate, err := f.evaluations.GetAggregate(context.Background(), in.ID)
	require.NoError(t, err)
	assert.False(t, aggregate.Graded)
	assert.Equal(t, 1, aggregate.Evaluations)

	submit(t, f, in.ID, models.EvaluatorTeacher, 0.6)
	aggregate, err = f.evaluations.GetAggregate(context.Background(), in.ID)
	require.NoError(t, err)
	require.NotNil(t, aggregate.Score)
	assert.Equal(t, 6.0, *aggregate.Score)
}

func TestSubmitEvaluationOutOfRangeStoresNothing(t *testing.T) {
	f := newPlacementFixture(t)
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)
	components := fullMarks(0.5)
	components[len(components)-1].Value = 1.5

	_, err := f.evaluations.SubmitEvaluation(context.Background(), SubmitEvaluationRequest{
		InternshipID: in.ID, Role: models.EvaluatorMentor, Components: components,
	})
	assert.ErrorIs(t, err, appErrors.ErrOutOfRange)

	records, err := f.evaluations.ListEvaluations(context.Background(), in.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSubmitEvaluationBoundsOverall(t *testing.T) {
	f := newPlacementFixture(t)
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)

	rec := submit(t, f, in.ID, models.EvaluatorSelf, 1)
	assert.GreaterOrEqual(t, rec.OverallScore, 0.0)
	assert.LessOrEqual(t, rec.OverallScore, rec.MaxScore+1e-9)
	assert.Equal(t, 10.0, rec.MaxScore)
	assert.Len(t, rec.Sections, 2)
	assert.Equal(t, "who", rec.EvaluatorID)
}

func TestSubmitEvaluationLastWriterWinsByTimestamp(t *testing.T) {
	f := newPlacementFixture(t)
	ctx := context.Background()
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)

	later := fixtureNow.Add(-time.Hour)
	newer, err := f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{
		InternshipID: in.ID, Role: models.EvaluatorMentor, Components: fullMarks(0.9), SubmittedAt: later,
	})
	require.NoError(t, err)

	returned, err := f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{
		InternshipID: in.ID, Role: models.EvaluatorMentor, Components: fullMarks(0.1), SubmittedAt: later.Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, returned.ID)
	assert.InDelta(t, newer.OverallScore, returned.OverallScore, 1e-9)
	assert.True(t, returned.UpdatedAt.Equal(later))

	overwrite, err := f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{
		InternshipID: in.ID, Role: models.EvaluatorMentor, Components: fullMarks(0.2), SubmittedAt: later.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, overwrite.ID)
	assert.Equal(t, 2, overwrite.Version)
}

func TestSubmitEvaluationRejectsFutureTimestamp(t *testing.T) {
	f := newPlacementFixture(t)
	ctx := context.Background()
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)

	_, err := f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{
		InternshipID: in.ID, Role: models.EvaluatorSelf, Components: fullMarks(1),
		SubmittedAt: time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	honest := submit(t, f, in.ID, models.EvaluatorSelf, 0.5)
	assert.InDelta(t, 5.0, honest.OverallScore, 1e-9)
	assert.Equal(t, 1, honest.Version)

	_, err = f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{
		InternshipID: in.ID, Role: models.EvaluatorMentor, Components: fullMarks(1),
		SubmittedAt: fixtureNow.Add(maxClockSkew),
	})
	require.NoError(t, err)
}

func TestSubmitEvaluationRejectsInactiveInternship(t *testing.T) {
	f := newPlacementFixture(t)
	ctx := context.Background()
	pending, err := f.internships.RequestInternship(ctx, RequestInternshipRequest{StudentID: "stu-1", CompanyID: "acme"}, Actor{})
	require.NoError(t, err)

	_, err = f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{InternshipID: pending.ID, Role: models.EvaluatorMentor, Components: fullMarks(0.5)})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{InternshipID: "missing", Role: models.EvaluatorMentor, Components: fullMarks(0.5)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.evaluations.SubmitEvaluation(ctx, SubmitEvaluationRequest{InternshipID: pending.ID, Role: "PEER", Components: fullMarks(0.5)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSubmitEvaluationInvalidatesCachedAggregate(t *testing.T) {
	f := newPlacementFixture(t)
	ctx := context.Background()
	cache := &fakeAggregateCache{}
	f.evaluations.cache = cache
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)

	submit(t, f, in.ID, models.EvaluatorMentor, 0.5)
	first, err := f.evaluations.GetAggregate(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *first.Score)
	require.Contains(t, cache.entries, aggregateCacheKey(in.ID))

	submit(t, f, in.ID, models.EvaluatorTeacher, 1)
	assert.Contains(t, cache.invalidated, aggregateCacheKey(in.ID))

	second, err := f.evaluations.GetAggregate(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, roundScore(0.5/0.9*5+0.4/0.9*10), *second.Score)
}

func TestSubmitEvaluationParallelRoles(t *testing.T) {
	f := newPlacementFixture(t)
	batch := f.openBatch(t, 1)
	in := f.assigned(t, "stu-1", batch.ID)

	var wg sync.WaitGroup
	for _, role := range models.EvaluatorRoles {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(role models.EvaluatorRole) {
				defer wg.Done()
				_, err := f.evaluations.SubmitEvaluation(context.Background(), SubmitEvaluationRequest{
					InternshipID: in.ID, Role: role, Components: fullMarks(0.5),
				})
				assert.NoError(t, err)
			}(role)
		}
	}
	wg.Wait()

	records, err := f.evaluations.ListEvaluations(context.Background(), in.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestNewRoleWeights(t *testing.T) {
	weights, err := NewRoleWeights(config.DefaultEvaluation())
	require.NoError(t, err)
	assert.Equal(t, 0.5, weights[models.EvaluatorMentor])

	_, err = NewRoleWeights(config.EvaluationConfig{MentorWeight: -1, TeacherWeight: 1})
	assert.ErrorIs(t, err, appErrors.ErrInvalidWeights)

	_, err = NewRoleWeights(config.EvaluationConfig{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidWeights)
}

func TestNewEvaluationServiceRequiresEveryRubric(t *testing.T) {
	model, err := NewScoreModel(config.DefaultEvaluation().Sections)
	require.NoError(t, err)
	_, err = NewEvaluationService(nil, nil, map[models.EvaluatorRole]*ScoreModel{models.EvaluatorMentor: model}, RoleWeights{}, nil, 0, nil, nil, nil)
	assert.Error(t, err)
}
