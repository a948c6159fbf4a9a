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

type internshipService interface {
	RequestInternship(ctx context.Context, req service.RequestInternshipRequest, actor service.Actor) (*models.Internship, error)
	Get(ctx context.Context, id string) (*models.Internship, error)
	List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, *models.Pagination, error)
	Approve(ctx context.Context, id string, actor service.Actor) (*models.Internship, error)
	Reject(ctx context.Context, id string, actor service.Actor) (*models.Internship, error)
	Assign(ctx context.Context, id string, req service.AssignRequest, actor service.Actor) (*models.Internship, error)
	Start(ctx context.Context, id string, actor service.Actor) (*models.Internship, error)
	Complete(ctx context.Context, id string, actor service.Actor) (*models.Internship, error)
	Cancel(ctx context.Context, id string, actor service.Actor) (*models.Internship, error)
}

// InternshipHandler exposes the placement lifecycle.
type InternshipHandler struct {
	internships internshipService
}

// NewInternshipHandler constructs InternshipHandler.
func NewInternshipHandler(internships internshipService) *InternshipHandler {
	return &InternshipHandler{internships: internships}
}

// List godoc
// @Summary List internships
// @Tags Internships
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param companyId query string false "Filter by company"
// @Param batchId query string false "Filter by batch"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /internships [get]
func (h *InternshipHandler) List(c *gin.Context) {
	var filter models.InternshipFilter
	filter.StudentID = c.Query("studentId")
	filter.CompanyID = c.Query("companyId")
	filter.BatchID = c.Query("batchId")
	filter.Status = models.InternshipStatus(strings.ToUpper(c.Query("status")))
	filter.Page, filter.PageSize = pageParams(c)
	if filter.Status != "" && !filter.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}

	internships, pagination, err := h.internships.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, internships, pagination)
}

// Get godoc
// @Summary Get internship
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id} [get]
func (h *InternshipHandler) Get(c *gin.Context) {
	internship, err := h.internships.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent && claims.UserID != internship.StudentID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, internship, nil)
}

// Create godoc
// @Summary Request internship placement
// @Tags Internships
// @Accept json
// @Produce json
// @Param payload body service.RequestInternshipRequest true "Placement request"
// @Success 201 {object} response.Envelope
// @Router /internships [post]
func (h *InternshipHandler) Create(c *gin.Context) {
	var req service.RequestInternshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if req.StudentID == "" && actor.Role == models.RoleStudent {
		req.StudentID = actor.ID
	}
	internship, err := h.internships.RequestInternship(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, internship)
}

// Approve godoc
// @Summary Approve internship request
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/approve [post]
func (h *InternshipHandler) Approve(c *gin.Context) {
	h.apply(c, h.internships.Approve)
}

// Reject godoc
// @Summary Reject internship request
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/reject [post]
func (h *InternshipHandler) Reject(c *gin.Context) {
	h.apply(c, h.internships.Reject)
}

// Assign godoc
// @Summary Assign internship to a batch seat
// @Tags Internships
// @Accept json
// @Produce json
// @Param id path string true "Internship ID"
// @Param payload body service.AssignRequest false "Target batch"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/assign [post]
func (h *InternshipHandler) Assign(c *gin.Context) {
	var req service.AssignRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	h.apply(c, func(ctx context.Context, id string, actor service.Actor) (*models.Internship, error) {
		return h.internships.Assign(ctx, id, req, actor)
	})
}

// Start godoc
// @Summary Start internship
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/start [post]
func (h *InternshipHandler) Start(c *gin.Context) {
	h.apply(c, h.internships.Start)
}

// Complete godoc
// @Summary Complete internship and record the final score
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/complete [post]
func (h *InternshipHandler) Complete(c *gin.Context) {
	h.apply(c, h.internships.Complete)
}

// Cancel godoc
// @Summary Cancel internship
// @Tags Internships
// @Produce json
// @Param id path string true "Internship ID"
// @Success 200 {object} response.Envelope
// @Router /internships/{id}/cancel [post]
func (h *InternshipHandler) Cancel(c *gin.Context) {
	h.apply(c, h.internships.Cancel)
}

type eventFunc func(ctx context.Context, id string, actor service.Actor) (*models.Internship, error)

func (h *InternshipHandler) apply(c *gin.Context, fn eventFunc) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	internship, err := fn(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, internship, nil)
}
