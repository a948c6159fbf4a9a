package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/internal/service"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
	"github.com/noah-isme/internship-placement-api/pkg/response"
)

type evaluationService interface {
	SubmitEvaluation(ctx context.Context, req service.SubmitEvaluationRequest) (*models.EvaluationRecord, error)
	ListEvaluations(ctx context.Context, internshipID string) ([]models.EvaluationRecord, error)
	GetAggregate(ctx context.Context, internshipID string) (*models.AggregateScore, error)
}

type internshipGetter interface {
	Get(ctx context.Context, id string) (*models.Internship, error)
}

// EvaluationHandler exposes evaluation submission and score reads.
type EvaluationHandler struct {
	evaluations evaluationService
	internships internshipGetter
}

// NewEvaluationHandler constructs EvaluationHandler.
func NewEvaluationHandler(evaluations evaluationService, internships internshipGetter) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations, internships: internships}
}

// Submit godoc
// @Summary Submit or replace an evaluation
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Internship ID"
// @Param role path string true "Evaluator role (MENTOR, TEACHER, SELF)"
// @Param payload body service.SubmitEvaluationRequest true "Score components"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/evaluations/{role} [put]
func (h *EvaluationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	role := models.EvaluatorRole(strings.ToUpper(c.Param("role")))
	if !role.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown evaluator role"))
		return
	}
	if claims.Role != models.RoleAdmin {
		own, ok := models.EvaluatorRoleFor(claims.Role)
		if !ok || own != role {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role may not submit this evaluation"))
			return
		}
	}

	var req service.SubmitEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.InternshipID = c.Param("id")
	req.Role = role
	req.EvaluatorID = claims.UserID

	if err := h.checkOwnership(c, claims, req.InternshipID); err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.evaluations.SubmitEvaluation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List evaluations of an internship
// @Tags Evaluations
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	if err := h.checkOwnership(c, claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.evaluations.ListEvaluations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Score godoc
// @Summary Get the weighted aggregate score
// @Tags Evaluations
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/score [get]
func (h *EvaluationHandler) Score(c *gin.Context) {
	if err := h.checkOwnership(c, claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	aggregate, err := h.evaluations.GetAggregate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, aggregate, nil)
}

// checkOwnership limits students to their own internships.
func (h *EvaluationHandler) checkOwnership(c *gin.Context, claims *models.JWTClaims, internshipID string) error {
	if claims == nil || claims.Role != models.RoleStudent {
		return nil
	}
	internship, err := h.internships.Get(c.Request.Context(), internshipID)
	if err != nil {
		return err
	}
	if internship.StudentID != claims.UserID {
		return appErrors.ErrForbidden
	}
	return nil
}
