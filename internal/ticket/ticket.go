// Package ticket implements the ticket lifecycle: PENDING tickets are
// materialized and ISSUED when a confirmed booking is ticketed, and an ISSUED
// ticket can later be VOIDED or REFUNDED. Issuance debits the agent's credit
// ledger; void and refund credit it back.
package ticket

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("ticket not found")
	ErrInvalidTicketState  = errors.New("ticket is not in a valid state for this operation")
	ErrInvalidBookingState = errors.New("booking is not in a valid state for ticketing")
	ErrInvalidAmount       = errors.New("invalid refund amount")
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusIssued   Status = "ISSUED"
	StatusVoided   Status = "VOIDED"
	StatusRefunded Status = "REFUNDED"
)

// Ticket is one issued flight ticket for one passenger.
type Ticket struct {
	ID            string     `json:"ticketId"`
	TicketNumber  string     `json:"ticketNumber"`
	BookingID     string     `json:"bookingId"`
	PNR           string     `json:"pnr"`
	AgentID       string     `json:"agentId"`
	PassengerID   string     `json:"passengerId"`
	PassengerName string     `json:"passengerName"`
	Status        Status     `json:"status"`
	FareAmount    string     `json:"fareAmount"`
	TaxAmount     string     `json:"taxAmount"`
	TotalAmount   string     `json:"totalAmount"`
	Currency      string     `json:"currency"`
	IssuedAt      *time.Time `json:"issuedAt,omitempty"`
	VoidDate      *time.Time `json:"voidDate,omitempty"`
	RefundDate    *time.Time `json:"refundDate,omitempty"`
	RefundAmount  string     `json:"refundAmount,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// StateChange carries the fields set when a ticket leaves ISSUED.
type StateChange struct {
	VoidDate     *time.Time
	RefundDate   *time.Time
	RefundAmount string
}

// Store persists tickets. CreateBatch must commit all tickets or none.
// Transition must atomically move a ticket from the expected status,
// returning ErrInvalidTicketState when the ticket is in another status.
type Store interface {
	CreateBatch(ctx context.Context, tickets []*Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	List(ctx context.Context, agentID string, status Status, limit int) ([]*Ticket, error)
	ListIssuedInWindow(ctx context.Context, agentID string, start, end time.Time) ([]*Ticket, error)
	Transition(ctx context.Context, id string, from, to Status, change StateChange) (*Ticket, error)
}

// ticketNumber generates an IATA-style ticket number on the carrier's
// 176 stock prefix.
func ticketNumber() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("ticket number entropy: %v", err))
	}
	n := uint64(0)
	for _, b := range buf {
		n = n<<8 | uint64(b)
	}
	return fmt.Sprintf("176-%010d", n%10000000000)
}
