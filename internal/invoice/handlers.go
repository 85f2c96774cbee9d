package invoice

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skyfare/skyfare/internal/auth"
	"github.com/skyfare/skyfare/internal/ledger"
)

// Handlers exposes invoice endpoints over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates HTTP handlers for invoices.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterAgent mounts agent-facing routes onto the given group.
func (h *Handlers) RegisterAgent(r *gin.RouterGroup) {
	r.GET("/invoices", h.list)
	r.GET("/invoices/:id", h.get)
	r.GET("/invoices/:id/download", h.download)
}

// RegisterAdmin mounts admin routes onto the given group.
func (h *Handlers) RegisterAdmin(r *gin.RouterGroup) {
	r.POST("/invoices/generate", h.generate)
	r.GET("/invoices", h.listAll)
	r.GET("/invoices/:id", h.getAdmin)
}

func (h *Handlers) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	invoices, err := h.svc.List(c.Request.Context(), auth.AgentID(c), Status(c.Query("status")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if invoices == nil {
		invoices = []*Invoice{}
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "count": len(invoices)})
}

func (h *Handlers) get(c *gin.Context) {
	inv, err := h.ownInvoice(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *Handlers) download(c *gin.Context) {
	inv, err := h.ownInvoice(c)
	if err != nil {
		writeError(c, err)
		return
	}

	doc, contentType, err := h.svc.Download(c.Request.Context(), inv.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", inv.InvoiceNumber))
	c.Data(http.StatusOK, contentType, doc)
}

func (h *Handlers) listAll(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	invoices, err := h.svc.List(c.Request.Context(), c.Query("agentId"), Status(c.Query("status")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if invoices == nil {
		invoices = []*Invoice{}
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "count": len(invoices)})
}

func (h *Handlers) getAdmin(c *gin.Context) {
	inv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// generate runs cycle generation. Two modes: ?date=YYYY-MM-DD bills the
// period containing that date for all active agents (defaults to the period
// that just closed); ?agentId=&start=&end= bills one agent for an explicit
// window.
func (h *Handlers) generate(c *gin.Context) {
	ctx := c.Request.Context()

	if agentID := c.Query("agentId"); agentID != "" {
		start, err1 := time.Parse("2006-01-02", c.Query("start"))
		end, err2 := time.Parse("2006-01-02", c.Query("end"))
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request",
				"message": "start and end must be YYYY-MM-DD"})
			return
		}
		end = end.Add(24*time.Hour - time.Nanosecond)

		inv, err := h.svc.GenerateForAgent(ctx, agentID, start, end)
		if err != nil {
			writeError(c, err)
			return
		}
		if inv == nil {
			c.JSON(http.StatusOK, gin.H{"invoice": nil, "message": "no eligible tickets in period"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"invoice": inv})
		return
	}

	ref := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request",
				"message": "date must be YYYY-MM-DD"})
			return
		}
		ref = parsed
	} else {
		ref, _ = PreviousPeriod(ref)
	}

	res, err := h.svc.GenerateForCycle(ctx, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ownInvoice loads the path invoice and hides other agents' invoices.
func (h *Handlers) ownInvoice(c *gin.Context) (*Invoice, error) {
	inv, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if inv.AgentID != auth.AgentID(c) {
		return nil, ErrNotFound
	}
	return inv, nil
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrDuplicateInvoicePeriod):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_invoice_period", "message": err.Error()})
	case errors.Is(err, ErrInvalidPeriod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_period", "message": err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": err.Error()})
	case errors.Is(err, ErrOverpayment):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "overpayment", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
	}
}
