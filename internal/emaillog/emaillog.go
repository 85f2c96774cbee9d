// Package emaillog delivers invoice notification emails through an external
// mail gateway and records an audit row for every attempt, successful or not.
package emaillog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("email log not found")

// Status is the delivery outcome of one email attempt.
type Status string

const (
	StatusSent   Status = "SENT"
	StatusFailed Status = "FAILED"
)

// Trigger is what caused the email.
type Trigger string

const (
	TriggerCycle  Trigger = "CYCLE"
	TriggerManual Trigger = "MANUAL"
)

// EmailLog is one delivery attempt for one invoice.
type EmailLog struct {
	ID             string    `json:"emailLogId"`
	InvoiceID      string    `json:"invoiceId"`
	RecipientEmail string    `json:"recipientEmail"`
	Status         Status    `json:"status"`
	TriggerSource  Trigger   `json:"triggerSource"`
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store persists email logs.
type Store interface {
	Create(ctx context.Context, e *EmailLog) error
	List(ctx context.Context, invoiceID string, limit int) ([]*EmailLog, error)
}

// Email is the message handed to the mail gateway.
type Email struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MailGateway is the external delivery collaborator.
type MailGateway interface {
	Send(ctx context.Context, e Email) error
}
