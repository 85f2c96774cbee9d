package topup

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skyfare/skyfare/internal/auth"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/metrics"
)

// Handlers exposes top-up endpoints over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates HTTP handlers for the top-up workflow.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterAgent mounts agent-facing routes onto the given group.
func (h *Handlers) RegisterAgent(r *gin.RouterGroup) {
	r.POST("/credit/topup", h.request)
	r.GET("/credit/topups", h.listOwn)
}

// RegisterAdmin mounts admin review routes onto the given group.
func (h *Handlers) RegisterAdmin(r *gin.RouterGroup) {
	r.GET("/credit-approvals", h.listAll)
	r.GET("/credit-approvals/:id", h.get)
	r.POST("/credit-approvals/:id/approve", h.approve)
	r.POST("/credit-approvals/:id/reject", h.reject)
}

type topupRequest struct {
	Amount       string `json:"amount" binding:"required"`
	RequestNotes string `json:"requestNotes"`
}

func (h *Handlers) request(c *gin.Context) {
	var req topupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	r, err := h.svc.Request(c.Request.Context(), auth.AgentID(c), req.Amount, req.RequestNotes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handlers) listOwn(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	reqs, err := h.svc.List(c.Request.Context(), auth.AgentID(c), Status(c.Query("status")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if reqs == nil {
		reqs = []*Request{}
	}
	c.JSON(http.StatusOK, gin.H{"topups": reqs, "count": len(reqs)})
}

func (h *Handlers) listAll(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	status := Status(c.DefaultQuery("status", string(StatusPending)))
	if c.Query("status") == "all" {
		status = ""
	}

	reqs, err := h.svc.List(c.Request.Context(), c.Query("agentId"), status, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if reqs == nil {
		reqs = []*Request{}
	}
	c.JSON(http.StatusOK, gin.H{"topups": reqs, "count": len(reqs)})
}

func (h *Handlers) get(c *gin.Context) {
	r, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type reviewRequest struct {
	ReviewNotes string `json:"reviewNotes"`
}

func (h *Handlers) approve(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)

	reviewer := ""
	if p, ok := auth.GetPrincipal(c); ok {
		reviewer = p.ID
	}

	r, err := h.svc.Approve(c.Request.Context(), c.Param("id"), reviewer, req.ReviewNotes)
	if err != nil {
		writeError(c, err)
		return
	}

	metrics.LedgerOpsTotal.WithLabelValues("topup_approved").Inc()
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) reject(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)

	reviewer := ""
	if p, ok := auth.GetPrincipal(c); ok {
		reviewer = p.ID
	}

	r, err := h.svc.Reject(c.Request.Context(), c.Param("id"), reviewer, req.ReviewNotes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "topup_not_found", "message": err.Error()})
	case errors.Is(err, ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": "already_reviewed", "message": err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
	case errors.Is(err, ErrAmountTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_too_large", "message": err.Error()})
	case errors.Is(err, ledger.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "agent_not_found", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
	}
}
