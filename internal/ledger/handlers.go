package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skyfare/skyfare/internal/auth"
	"github.com/skyfare/skyfare/internal/logging"
	"github.com/skyfare/skyfare/internal/metrics"
)

// Handlers exposes credit account endpoints over HTTP.
type Handlers struct {
	ledger *Ledger
}

// NewHandlers creates HTTP handlers for the ledger.
func NewHandlers(l *Ledger) *Handlers {
	return &Handlers{ledger: l}
}

// RegisterAgent mounts agent-facing routes onto the given group.
func (h *Handlers) RegisterAgent(r *gin.RouterGroup) {
	r.GET("/credit/balance", h.getBalance)
	r.GET("/credit/transactions", h.listTransactions)
}

// RegisterAdmin mounts admin routes onto the given group.
func (h *Handlers) RegisterAdmin(r *gin.RouterGroup) {
	r.POST("/agents", h.createAgent)
	r.GET("/agents", h.listAgents)
	r.GET("/agents/:id", h.getAgent)
	r.PUT("/agents/:id/credit-limit", h.setCreditLimit)
	r.PUT("/agents/:id/status", h.setStatus)
}

func (h *Handlers) getBalance(c *gin.Context) {
	bal, err := h.ledger.Balance(c.Request.Context(), auth.AgentID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h *Handlers) listTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txns, err := h.ledger.History(c.Request.Context(), auth.AgentID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if txns == nil {
		txns = []*Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

type createAgentRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	CreditLimit string `json:"creditLimit" binding:"required"`
}

func (h *Handlers) createAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	a, err := h.ledger.CreateAccount(c.Request.Context(), req.Name, req.Email, req.CreditLimit)
	if err != nil {
		writeError(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("agent account created",
		"agent_id", a.ID, "credit_limit", a.CreditLimit)
	metrics.LedgerOpsTotal.WithLabelValues("account_created").Inc()

	c.JSON(http.StatusCreated, a)
}

func (h *Handlers) listAgents(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	accounts, err := h.ledger.ListAccounts(c.Request.Context(), activeOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	if accounts == nil {
		accounts = []*Account{}
	}
	c.JSON(http.StatusOK, gin.H{"agents": accounts, "count": len(accounts)})
}

func (h *Handlers) getAgent(c *gin.Context) {
	a, err := h.ledger.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type creditLimitRequest struct {
	CreditLimit string `json:"creditLimit" binding:"required"`
}

func (h *Handlers) setCreditLimit(c *gin.Context) {
	var req creditLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	a, err := h.ledger.SetCreditLimit(c.Request.Context(), c.Param("id"), req.CreditLimit)
	if err != nil {
		writeError(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("credit limit updated",
		"agent_id", a.ID, "credit_limit", a.CreditLimit)

	c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

func (h *Handlers) setStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	a, err := h.ledger.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "agent_not_found", "message": err.Error()})
	case errors.Is(err, ErrAgentExists):
		c.JSON(http.StatusConflict, gin.H{"error": "agent_exists", "message": err.Error()})
	case errors.Is(err, ErrAgentInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "agent_inactive", "message": err.Error()})
	case errors.Is(err, ErrInsufficientCredit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_credit", "message": err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
	}
}
