package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/internal/service"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
	"github.com/noah-isme/internship-placement-api/pkg/response"
)

type batchService interface {
	CreateBatch(ctx context.Context, req service.CreateBatchRequest) (*models.BatchView, error)
	GetBatch(ctx context.Context, id string, now time.Time) (*models.BatchView, error)
	ListBatches(ctx context.Context, filter models.BatchFilter, now time.Time) ([]models.BatchView, *models.Pagination, error)
	RetireBatch(ctx context.Context, id string) (*models.BatchView, error)
}

// BatchHandler exposes the batch registry.
type BatchHandler struct {
	batches batchService
	now     func() time.Time
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(batches batchService) *BatchHandler {
	return &BatchHandler{batches: batches, now: time.Now}
}

// List godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Param includeRetired query bool false "Include retired batches"
// @Param asOf query string false "RFC3339 reference time for derived fields"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	asOf, err := h.asOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var filter models.BatchFilter
	filter.IncludeRetired, _ = strconv.ParseBool(c.DefaultQuery("includeRetired", "false"))
	filter.Page, filter.PageSize = pageParams(c)

	batches, pagination, err := h.batches.ListBatches(c.Request.Context(), filter, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// Get godoc
// @Summary Get batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param asOf query string false "RFC3339 reference time for derived fields"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	asOf, err := h.asOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	batch, err := h.batches.GetBatch(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Create godoc
// @Summary Create batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body service.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req service.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	batch, err := h.batches.CreateBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Retire godoc
// @Summary Retire batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/retire [post]
func (h *BatchHandler) Retire(c *gin.Context) {
	batch, err := h.batches.RetireBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

func (h *BatchHandler) asOf(c *gin.Context) (time.Time, error) {
	raw := c.Query("asOf")
	if raw == "" {
		return h.now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "asOf must be RFC3339")
	}
	return t.UTC(), nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}
