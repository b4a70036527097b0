package credit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/proprios/search-api/internal/handler"
	"github.com/proprios/search-api/internal/middleware"
	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/service/ledger"
)

type Handler struct {
	service ledger.Servicer
}

func NewHandler(service ledger.Servicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	credits := r.Group("/credits")
	{
		credits.GET("", h.Balance)
		credits.GET("/transactions", h.Transactions)
		credits.POST("/purchase", h.Purchase)
	}
}

// Balance reports the spendable balance after applying any due monthly
// reset, so a stale allowance is never shown.
func (h *Handler) Balance(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing identity"))
		return
	}

	if _, err := h.service.ResetIfDue(c.Request.Context(), orgID); err != nil {
		c.Error(err)
		return
	}

	balance, err := h.service.Balance(c.Request.Context(), orgID)
	if err != nil {
		c.Error(err)
		return
	}
	nextReset, err := h.service.NextResetAt(c.Request.Context(), orgID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"balance":       balance,
		"next_reset_at": nextReset,
	}))
}

func (h *Handler) Transactions(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing identity"))
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}

	transactions, err := h.service.Transactions(c.Request.Context(), orgID, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(transactions))
}

type purchaseRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

func (h *Handler) Purchase(c *gin.Context) {
	orgID, ok := middleware.OrganizationID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing identity"))
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	balance, err := h.service.Credit(c.Request.Context(), orgID, req.Amount,
		model.TransactionPurchase, "Credit purchase", nil)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"balance": balance}))
}
