package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skyfare/skyfare/internal/auth"
	"github.com/skyfare/skyfare/internal/invoice"
)

// Handlers exposes payment endpoints over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates HTTP handlers for payments.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterAgent mounts agent-facing routes onto the given group.
func (h *Handlers) RegisterAgent(r *gin.RouterGroup) {
	r.POST("/payments/pay", h.pay)
	r.GET("/payments", h.list)
	r.GET("/payments/:id", h.get)
}

type payRequest struct {
	InvoiceID     string `json:"invoiceId" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
	TransactionID string `json:"transactionId"`
}

func (h *Handlers) pay(c *gin.Context) {
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	p, err := h.svc.Pay(c.Request.Context(), auth.AgentID(c), req.InvoiceID,
		req.Amount, Method(req.PaymentMethod), req.TransactionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handlers) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	payments, err := h.svc.List(c.Request.Context(), auth.AgentID(c), c.Query("invoiceId"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if payments == nil {
		payments = []*Payment{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

func (h *Handlers) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if p.AgentID != auth.AgentID(c) {
		writeError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, invoice.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrInvalidMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_method", "message": err.Error()})
	case errors.Is(err, invoice.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
	case errors.Is(err, invoice.ErrOverpayment):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "overpayment", "message": err.Error()})
	case errors.Is(err, ErrPaymentFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment_failed", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
	}
}
