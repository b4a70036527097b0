package search

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/proprios/search-api/internal/handler"
	"github.com/proprios/search-api/internal/middleware"
	"github.com/proprios/search-api/internal/model"
	searchService "github.com/proprios/search-api/internal/service/search"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

type Handler struct {
	service searchService.Servicer
}

func NewHandler(service searchService.Servicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	searches := r.Group("/searches")
	{
		searches.POST("/estimate", h.Estimate)
		searches.GET("", h.History)
		searches.POST("/:id/validate", h.Validate)
		searches.POST("/:id/execute", h.Execute)
		searches.POST("/:id/enrich", h.Enrich)
		searches.GET("/:id/enrichment", h.EnrichmentStatus)
		searches.GET("/:id/results", h.Results)
	}
}

type estimateRequest struct {
	Type     string          `json:"type" binding:"required"`
	Criteria json.RawMessage `json:"criteria" binding:"required"`
}

func (h *Handler) Estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	searchType, err := model.ParseSearchType(req.Type)
	if err != nil {
		c.Error(apperrors.Validation(err.Error(), err))
		return
	}

	orgID, userID, ok := identity(c)
	if !ok {
		return
	}

	estimate, err := h.service.Estimate(c.Request.Context(), orgID, userID, searchType, req.Criteria)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(estimate))
}

func (h *Handler) Validate(c *gin.Context) {
	orgID, searchID, ok := orgAndSearch(c)
	if !ok {
		return
	}

	search, err := h.service.Validate(c.Request.Context(), orgID, searchID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(search))
}

func (h *Handler) Execute(c *gin.Context) {
	orgID, searchID, ok := orgAndSearch(c)
	if !ok {
		return
	}

	search, properties, err := h.service.Execute(c.Request.Context(), orgID, searchID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"search":     search,
		"properties": properties,
	}))
}

type enrichRequest struct {
	NotifyEmail string `json:"notify_email" binding:"omitempty,email"`
}

func (h *Handler) Enrich(c *gin.Context) {
	orgID, searchID, ok := orgAndSearch(c)
	if !ok {
		return
	}

	var req enrichRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	search, err := h.service.Enrich(c.Request.Context(), orgID, searchID, req.NotifyEmail)
	if err != nil {
		c.Error(err)
		return
	}
	// Progress records are keyed by the search ID, so it doubles as the job ID.
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(gin.H{
		"search":                 search,
		"job_id":                 search.ID,
		"estimated_time_seconds": search.ActualRows * 2,
	}))
}

func (h *Handler) EnrichmentStatus(c *gin.Context) {
	orgID, searchID, ok := orgAndSearch(c)
	if !ok {
		return
	}

	state, err := h.service.EnrichmentStatus(c.Request.Context(), orgID, searchID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(state))
}

func (h *Handler) Results(c *gin.Context) {
	orgID, searchID, ok := orgAndSearch(c)
	if !ok {
		return
	}

	properties, err := h.service.Results(c.Request.Context(), orgID, searchID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(properties))
}

func (h *Handler) History(c *gin.Context) {
	orgID, _, ok := identity(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	searches, err := h.service.History(c.Request.Context(), orgID, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(searches))
}

func identity(c *gin.Context) (orgID, userID uuid.UUID, ok bool) {
	orgID, orgOK := middleware.OrganizationID(c)
	userID, userOK := middleware.UserID(c)
	if !orgOK || !userOK {
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing identity"))
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, userID, true
}

func orgAndSearch(c *gin.Context) (orgID, searchID uuid.UUID, ok bool) {
	orgID, _, ok = identity(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	searchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid search ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, searchID, true
}
