// Package booking holds flight bookings awaiting ticket issuance.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/money"
)

var (
	ErrNotFound     = errors.New("booking not found")
	ErrInvalidState = errors.New("booking is not in a valid state for this operation")
	ErrNoPassengers = errors.New("booking has no passengers")
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusTicketed  Status = "TICKETED"
	StatusCancelled Status = "CANCELLED"
)

// Passenger is one traveller on a booking, with their fare breakdown.
type Passenger struct {
	ID         string `json:"passengerId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	FareAmount string `json:"fareAmount"`
	TaxAmount  string `json:"taxAmount"`
}

// Booking is a confirmed reservation ready to be ticketed.
type Booking struct {
	ID         string      `json:"bookingId"`
	PNR        string      `json:"pnr"`
	AgentID    string      `json:"agentId"`
	Status     Status      `json:"status"`
	Origin     string      `json:"origin"`
	Dest       string      `json:"destination"`
	TotalFare  string      `json:"totalFare"`
	Currency   string      `json:"currency"`
	Passengers []Passenger `json:"passengers"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Store persists bookings.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}

// NewBooking builds a CONFIRMED booking, deriving each passenger id and the
// booking total from the per-passenger fare breakdown.
func NewBooking(agentID, pnr, origin, dest, currency string, passengers []Passenger) (*Booking, error) {
	if len(passengers) == 0 {
		return nil, ErrNoPassengers
	}

	total := money.Zero
	for i := range passengers {
		fare, err := money.Canonical(passengers[i].FareAmount)
		if err != nil {
			return nil, err
		}
		tax, err := money.Canonical(passengers[i].TaxAmount)
		if err != nil {
			return nil, err
		}
		passengers[i].FareAmount = fare
		passengers[i].TaxAmount = tax
		if passengers[i].ID == "" {
			passengers[i].ID = idgen.WithPrefix("pax_")
		}

		total, err = money.Add(total, fare)
		if err != nil {
			return nil, err
		}
		total, err = money.Add(total, tax)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	return &Booking{
		ID:         idgen.WithPrefix("bkg_"),
		PNR:        pnr,
		AgentID:    agentID,
		Status:     StatusConfirmed,
		Origin:     origin,
		Dest:       dest,
		TotalFare:  total,
		Currency:   currency,
		Passengers: passengers,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
