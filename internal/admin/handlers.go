package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes admin dashboard and settings endpoints over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates HTTP handlers for the admin surface.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterAdmin mounts admin routes onto the given group.
func (h *Handlers) RegisterAdmin(r *gin.RouterGroup) {
	r.GET("/dashboard", h.dashboard)
	r.GET("/settings", h.listSettings)
	r.PUT("/settings", h.putSetting)
}

func (h *Handlers) dashboard(c *gin.Context) {
	d, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handlers) listSettings(c *gin.Context) {
	settings, err := h.svc.Settings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}
	if settings == nil {
		settings = []*Setting{}
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings, "count": len(settings)})
}

type putSettingRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func (h *Handlers) putSetting(c *gin.Context) {
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	s, err := h.svc.PutSetting(c.Request.Context(), req.Key, req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}
	c.JSON(http.StatusOK, s)
}
