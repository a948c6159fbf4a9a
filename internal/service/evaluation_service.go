package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/pkg/config"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

type evaluationRepository interface {
	Upsert(ctx context.Context, rec *models.EvaluationRecord) (bool, error)
	FindByKey(ctx context.Context, internshipID string, role models.EvaluatorRole) (*models.EvaluationRecord, error)
	ListByInternship(ctx context.Context, internshipID string) ([]models.EvaluationRecord, error)
}

type internshipReader interface {
	FindByID(ctx context.Context, id string) (*models.Internship, error)
}

type aggregateCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// RoleWeights maps each evaluator role to its share of the aggregate.
type RoleWeights map[models.EvaluatorRole]float64

// NewRoleWeights validates configured weights: each finite and non-negative, at least
// one positive.
func NewRoleWeights(cfg config.EvaluationConfig) (RoleWeights, error) {
	weights := RoleWeights{
		models.EvaluatorMentor:  cfg.MentorWeight,
		models.EvaluatorTeacher: cfg.TeacherWeight,
		models.EvaluatorSelf:    cfg.SelfWeight,
	}
	positive := false
	for role, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("weight for %s must be a non-negative number", role))
		}
		if w > 0 {
			positive = true
		}
	}
	if !positive {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights, "at least one evaluator weight must be positive")
	}
	return weights, nil
}

// SubmitEvaluationRequest is one evaluator's scoring of an internship.
type SubmitEvaluationRequest struct {
	InternshipID string                  `json:"-" validate:"required"`
	Role         models.EvaluatorRole    `json:"-" validate:"required,evaluator_role"`
	Components   []models.ScoreComponent `json:"components" validate:"required,min=1,dive"`
	Comment      string                  `json:"comment" validate:"max=4000"`
	EvaluatorID  string                  `json:"-"`
	// SubmittedAt orders competing writes; zero means now. It is set by trusted
	// callers only and may not run ahead of the server clock by more than maxClockSkew.
	SubmittedAt time.Time `json:"-"`
}

// maxClockSkew bounds how far a caller-supplied SubmittedAt may lead the server clock.
const maxClockSkew = time.Minute

// evaluableStatuses are the states in which an internship accepts evaluations.
var evaluableStatuses = map[models.InternshipStatus]bool{
	models.InternshipAssigned:   true,
	models.InternshipInProgress: true,
}

// EvaluationService stores per-role evaluations and combines them into an aggregate.
type EvaluationService struct {
	repo        evaluationRepository
	internships internshipReader
	rubrics     map[models.EvaluatorRole]*ScoreModel
	weights     RoleWeights
	cache       aggregateCache
	cacheTTL    time.Duration
	metrics     *MetricsService
	records     *keyedMutex
	locks       *keyedMutex
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEvaluationService constructs EvaluationService. Every evaluator role needs a rubric.
func NewEvaluationService(repo evaluationRepository, internships internshipReader, rubrics map[models.EvaluatorRole]*ScoreModel, weights RoleWeights, cache aggregateCache, cacheTTL time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) (*EvaluationService, error) {
	for _, role := range models.EvaluatorRoles {
		if rubrics[role] == nil {
			return nil, fmt.Errorf("no rubric configured for %s", role)
		}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewCacheService(nil, metrics, cacheTTL, logger, false)
	}
	svc := &EvaluationService{
		repo:        repo,
		internships: internships,
		rubrics:     rubrics,
		weights:     weights,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		records:     newKeyedMutex(),
		locks:       newKeyedMutex(),
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
	svc.validator.RegisterValidation("evaluator_role", func(fl validator.FieldLevel) bool {
		return models.EvaluatorRole(fl.Field().String()).Valid()
	})
	return svc, nil
}

// SameRubric assigns one ScoreModel to every evaluator role.
func SameRubric(model *ScoreModel) map[models.EvaluatorRole]*ScoreModel {
	out := make(map[models.EvaluatorRole]*ScoreModel, len(models.EvaluatorRoles))
	for _, role := range models.EvaluatorRoles {
		out[role] = model
	}
	return out
}

// recordLocks is the per-internship lock lifecycle transitions take exclusively.
// Submissions hold it shared from the status check until the write lands.
func (s *EvaluationService) recordLocks() *keyedMutex {
	return s.records
}

// SubmitEvaluation validates and stores the evaluation for (internship, role). A
// submission older than the stored record is discarded and the stored record returned.
func (s *EvaluationService) SubmitEvaluation(ctx context.Context, req SubmitEvaluationRequest) (*models.EvaluationRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}
	breakdown, err := s.rubrics[req.Role].Validate(req.Components)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	at := now
	if !req.SubmittedAt.IsZero() {
		at = req.SubmittedAt.UTC()
		if at.After(now.Add(maxClockSkew)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "submitted_at is ahead of the server clock")
		}
	}

	runlock := s.records.RLock(req.InternshipID)
	defer runlock()

	internship, err := s.loadInternship(ctx, req.InternshipID)
	if err != nil {
		return nil, err
	}
	if !evaluableStatuses[internship.Status] {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("internship in %s does not accept evaluations", internship.Status))
	}

	unlock := s.locks.Lock(req.InternshipID + "/" + string(req.Role))
	defer unlock()

	rec := &models.EvaluationRecord{
		InternshipID:  req.InternshipID,
		EvaluatorRole: req.Role,
		EvaluatorID:   req.EvaluatorID,
		Components:    breakdown.Components,
		Sections:      breakdown.Sections,
		OverallScore:  breakdown.Total,
		MaxScore:      breakdown.Max,
		Comment:       req.Comment,
		UpdatedAt:     at,
	}
	applied, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evaluation")
	}
	s.metrics.RecordEvaluation(req.Role, applied)
	if !applied {
		s.logger.Info("stale evaluation discarded",
			zap.String("internship_id", req.InternshipID), zap.String("role", string(req.Role)), zap.Time("submitted_at", at))
		stored, err := s.repo.FindByKey(ctx, req.InternshipID, req.Role)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored evaluation")
		}
		return stored, nil
	}
	_ = s.cache.Invalidate(ctx, aggregateCacheKey(req.InternshipID))
	s.logger.Info("evaluation stored",
		zap.String("internship_id", req.InternshipID), zap.String("role", string(req.Role)), zap.Float64("score", rec.OverallScore))
	return rec, nil
}

// ListEvaluations returns the active evaluations of an internship in role order.
func (s *EvaluationService) ListEvaluations(ctx context.Context, internshipID string) ([]models.EvaluationRecord, error) {
	if _, err := s.loadInternship(ctx, internshipID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByInternship(ctx, internshipID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	return records, nil
}

// GetAggregate combines present evaluations with renormalized role weights, serving
// from the cache when it can.
func (s *EvaluationService) GetAggregate(ctx context.Context, internshipID string) (*models.AggregateScore, error) {
	key := aggregateCacheKey(internshipID)
	var cached models.AggregateScore
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}
	aggregate, err := s.ComputeAggregate(ctx, internshipID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, *aggregate, s.cacheTTL)
	return aggregate, nil
}

// ComputeAggregate builds the aggregate from storage, bypassing the cache.
func (s *EvaluationService) ComputeAggregate(ctx context.Context, internshipID string) (*models.AggregateScore, error) {
	if _, err := s.loadInternship(ctx, internshipID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByInternship(ctx, internshipID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluations")
	}
	aggregate := Aggregate(internshipID, records, s.weights, s.now().UTC())
	return &aggregate, nil
}

// Aggregate is the weighted mean of the records' overall scores using the weights of
// the roles present, renormalized to sum to one. Zero-weight roles are listed but do
// not contribute. Without a contributing record the result is ungraded.
func Aggregate(internshipID string, records []models.EvaluationRecord, weights RoleWeights, now time.Time) models.AggregateScore {
	result := models.AggregateScore{
		InternshipID:  internshipID,
		Contributions: make([]models.RoleContribution, 0, len(records)),
		Evaluations:   len(records),
		ComputedAt:    now,
	}
	var weightSum float64
	for _, rec := range records {
		weightSum += weights[rec.EvaluatorRole]
	}
	var total float64
	for _, rec := range records {
		contribution := models.RoleContribution{Role: rec.EvaluatorRole, Score: rec.OverallScore}
		if weightSum > 0 {
			contribution.Weight = weights[rec.EvaluatorRole] / weightSum
			contribution.Weighted = contribution.Weight * rec.OverallScore
			total += contribution.Weighted
		}
		result.Contributions = append(result.Contributions, contribution)
	}
	if weightSum > 0 {
		score := roundScore(total)
		result.Graded = true
		result.Score = &score
	}
	return result
}

func (s *EvaluationService) loadInternship(ctx context.Context, id string) (*models.Internship, error) {
	internship, err := s.internships.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "internship not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load internship")
	}
	return internship, nil
}

func aggregateCacheKey(internshipID string) string {
	return "evaluation:aggregate:" + internshipID
}
