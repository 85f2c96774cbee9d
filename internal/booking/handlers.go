package booking

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skyfare/skyfare/internal/auth"
)

// Handlers exposes the minimal booking endpoints ticketing depends on.
type Handlers struct {
	store    Store
	currency string
}

// NewHandlers creates HTTP handlers for bookings.
func NewHandlers(store Store, currency string) *Handlers {
	return &Handlers{store: store, currency: currency}
}

// RegisterAgent mounts agent-facing routes onto the given group.
func (h *Handlers) RegisterAgent(r *gin.RouterGroup) {
	r.POST("/bookings", h.create)
	r.GET("/bookings", h.list)
	r.GET("/bookings/:id", h.get)
}

type passengerRequest struct {
	FirstName  string `json:"firstName" binding:"required"`
	LastName   string `json:"lastName" binding:"required"`
	FareAmount string `json:"fareAmount" binding:"required"`
	TaxAmount  string `json:"taxAmount" binding:"required"`
}

type createBookingRequest struct {
	PNR        string             `json:"pnr" binding:"required"`
	Origin     string             `json:"origin"`
	Dest       string             `json:"destination"`
	Passengers []passengerRequest `json:"passengers" binding:"required,min=1,dive"`
}

func (h *Handlers) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	passengers := make([]Passenger, len(req.Passengers))
	for i, p := range req.Passengers {
		passengers[i] = Passenger{
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			FareAmount: p.FareAmount,
			TaxAmount:  p.TaxAmount,
		}
	}

	b, err := NewBooking(auth.AgentID(c), req.PNR, req.Origin, req.Dest, h.currency, passengers)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.store.Create(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handlers) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	bookings, err := h.store.ListByAgent(c.Request.Context(), auth.AgentID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}
	if bookings == nil {
		bookings = []*Booking{}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

func (h *Handlers) get(c *gin.Context) {
	b, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking_not_found", "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}
	// Agents can only see their own bookings.
	if b.AgentID != auth.AgentID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking_not_found", "message": ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, b)
}
