package emaillog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skyfare/skyfare/internal/invoice"
)

// Handlers exposes admin email log endpoints over HTTP.
type Handlers struct {
	notifier *Notifier
}

// NewHandlers creates HTTP handlers for email logs.
func NewHandlers(n *Notifier) *Handlers {
	return &Handlers{notifier: n}
}

// RegisterAdmin mounts admin routes onto the given group.
func (h *Handlers) RegisterAdmin(r *gin.RouterGroup) {
	r.GET("/invoices/email-logs", h.list)
	r.POST("/invoices/:id/resend-email", h.resend)
}

func (h *Handlers) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.notifier.List(c.Request.Context(), c.Query("invoiceId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}
	if logs == nil {
		logs = []*EmailLog{}
	}
	c.JSON(http.StatusOK, gin.H{"emailLogs": logs, "count": len(logs)})
}

func (h *Handlers) resend(c *gin.Context) {
	entry, err := h.notifier.Resend(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, invoice.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case err != nil && entry != nil:
		// Delivery failed but the attempt was logged.
		c.JSON(http.StatusBadGateway, gin.H{"error": "delivery_failed", "emailLog": entry})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
	default:
		c.JSON(http.StatusOK, gin.H{"emailLog": entry})
	}
}
