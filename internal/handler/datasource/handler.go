package datasource

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/proprios/search-api/internal/handler"
	"github.com/proprios/search-api/internal/model"
	dsService "github.com/proprios/search-api/internal/service/datasource"
)

// Handler exposes the platform administration surface for external property
// databases.
type Handler struct {
	registry *dsService.Registry
}

func NewHandler(registry *dsService.Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sources := r.Group("/datasources")
	{
		sources.POST("", h.Create)
		sources.GET("", h.List)
		sources.GET("/:id", h.Get)
		sources.PUT("/:id", h.Update)
		sources.DELETE("/:id", h.Delete)
		sources.POST("/:id/test", h.Test)
		sources.GET("/:id/columns", h.Columns)
		sources.PUT("/:id/mappings", h.ReplaceMappings)
	}
}

type sourceRequest struct {
	Name     string            `json:"name" binding:"required"`
	Kind     string            `json:"kind" binding:"required,oneof=owners registry"`
	Host     string            `json:"host" binding:"required"`
	Port     int               `json:"port" binding:"required,gt=0"`
	Database string            `json:"database" binding:"required"`
	Username string            `json:"username" binding:"required"`
	Password string            `json:"password"`
	Schema   string            `json:"schema"`
	Table    string            `json:"table_name" binding:"required"`
	SSLMode  string            `json:"sslmode"`
	Mappings map[string]string `json:"mappings"`
}

func (r *sourceRequest) toModel() *model.DataSource {
	return &model.DataSource{
		Name:     r.Name,
		Kind:     model.DataSourceKind(r.Kind),
		Host:     r.Host,
		Port:     r.Port,
		Database: r.Database,
		Username: r.Username,
		Schema:   r.Schema,
		Table:    r.Table,
		SSLMode:  r.SSLMode,
		Mappings: r.Mappings,
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("password is required"))
		return
	}

	ds := req.toModel()
	ds.ID = uuid.New()
	if err := h.registry.CreateSource(c.Request.Context(), ds, req.Password); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(ds))
}

func (h *Handler) List(c *gin.Context) {
	sources, err := h.registry.ListSources(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(sources))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := sourceID(c)
	if !ok {
		return
	}
	ds, err := h.registry.GetSource(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ds))
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := sourceID(c)
	if !ok {
		return
	}

	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	ds := req.toModel()
	ds.ID = id
	if err := h.registry.UpdateSource(c.Request.Context(), ds, req.Password); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(ds))
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := sourceID(c)
	if !ok {
		return
	}
	if err := h.registry.DeleteSource(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Test(c *gin.Context) {
	id, ok := sourceID(c)
	if !ok {
		return
	}
	result, err := h.registry.TestConnection(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Columns(c *gin.Context) {
	id, ok := sourceID(c)
	if !ok {
		return
	}
	columns, err := h.registry.Columns(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(columns))
}

type mappingsRequest struct {
	Mappings map[string]string `json:"mappings" binding:"required"`
}

func (h *Handler) ReplaceMappings(c *gin.Context) {
	id, ok := sourceID(c)
	if !ok {
		return
	}

	var req mappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.registry.ReplaceMappings(c.Request.Context(), id, req.Mappings); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"mappings": req.Mappings}))
}

func sourceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid data source ID"))
		return uuid.Nil, false
	}
	return id, true
}
