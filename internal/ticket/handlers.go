package ticket

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skyfare/skyfare/internal/auth"
	"github.com/skyfare/skyfare/internal/booking"
	"github.com/skyfare/skyfare/internal/ledger"
)

// Handlers exposes ticket lifecycle endpoints over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates HTTP handlers for tickets.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterAgent mounts agent-facing routes onto the given group.
func (h *Handlers) RegisterAgent(r *gin.RouterGroup) {
	r.POST("/tickets/issue", h.issue)
	r.GET("/tickets", h.list)
	r.GET("/tickets/:id", h.get)
	r.POST("/tickets/:id/void", h.void)
	r.POST("/tickets/:id/refund", h.refund)
}

type issueRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
}

func (h *Handlers) issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	tickets, err := h.svc.Issue(c.Request.Context(), auth.AgentID(c), req.BookingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (h *Handlers) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	tickets, err := h.svc.List(c.Request.Context(), auth.AgentID(c), Status(c.Query("status")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if tickets == nil {
		tickets = []*Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (h *Handlers) get(c *gin.Context) {
	t, err := h.ownTicket(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handlers) void(c *gin.Context) {
	if _, err := h.ownTicket(c); err != nil {
		writeError(c, err)
		return
	}

	t, err := h.svc.Void(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type refundRequest struct {
	Amount string `json:"amount"`
}

func (h *Handlers) refund(c *gin.Context) {
	var req refundRequest
	_ = c.ShouldBindJSON(&req)

	if _, err := h.ownTicket(c); err != nil {
		writeError(c, err)
		return
	}

	t, err := h.svc.Refund(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ownTicket loads the path ticket and hides other agents' tickets.
func (h *Handlers) ownTicket(c *gin.Context) (*Ticket, error) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if t.AgentID != auth.AgentID(c) {
		return nil, ErrNotFound
	}
	return t, nil
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrInvalidTicketState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_ticket_state", "message": err.Error()})
	case errors.Is(err, ErrInvalidBookingState), errors.Is(err, booking.ErrNoPassengers):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_booking_state", "message": err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientCredit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_credit", "message": err.Error()})
	case errors.Is(err, ledger.ErrAgentInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "agent_inactive", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
	}
}
