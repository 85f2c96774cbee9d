package emaillog

import (
	"context"
	"fmt"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/invoice"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/logging"
	"github.com/skyfare/skyfare/internal/metrics"
	"time"
)

// AgentSource resolves the recipient for an invoice.
type AgentSource interface {
	GetAccount(ctx context.Context, agentID string) (*ledger.Account, error)
}

// InvoiceSource loads invoices for manual resends.
type InvoiceSource interface {
	Get(ctx context.Context, id string) (*invoice.Invoice, error)
}

// Notifier sends invoice emails and records an EmailLog row for every
// attempt. A failed delivery is logged, never retried automatically; admins
// resend manually, each resend producing a fresh row.
type Notifier struct {
	store    Store
	gateway  MailGateway
	agents   AgentSource
	invoices InvoiceSource
	from     string
}

// NewNotifier creates an invoice email notifier.
func NewNotifier(store Store, gateway MailGateway, agents AgentSource, invoices InvoiceSource, from string) *Notifier {
	return &Notifier{
		store:    store,
		gateway:  gateway,
		agents:   agents,
		invoices: invoices,
		from:     from,
	}
}

// InvoiceGenerated implements invoice.Mailer. Delivery runs in the
// background so cycle generation never blocks on the mail gateway.
func (n *Notifier) InvoiceGenerated(ctx context.Context, inv *invoice.Invoice) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := n.send(bg, inv, TriggerCycle); err != nil {
			logging.L(bg).Error("invoice email dispatch failed",
				"invoice_id", inv.ID, "error", err)
		}
	}()
}

// Resend sends the invoice email again on admin request.
func (n *Notifier) Resend(ctx context.Context, invoiceID string) (*EmailLog, error) {
	inv, err := n.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return n.send(ctx, inv, TriggerManual)
}

// List returns email logs, optionally filtered by invoice.
func (n *Notifier) List(ctx context.Context, invoiceID string, limit int) ([]*EmailLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return n.store.List(ctx, invoiceID, limit)
}

func (n *Notifier) send(ctx context.Context, inv *invoice.Invoice, trigger Trigger) (*EmailLog, error) {
	acct, err := n.agents.GetAccount(ctx, inv.AgentID)
	if err != nil {
		return nil, err
	}

	entry := &EmailLog{
		ID:             idgen.WithPrefix("eml_"),
		InvoiceID:      inv.ID,
		RecipientEmail: acct.Email,
		TriggerSource:  trigger,
		CreatedAt:      time.Now(),
	}

	outstanding, err := inv.Outstanding()
	if err != nil {
		outstanding = inv.TotalAmount
	}
	sendErr := n.gateway.Send(ctx, Email{
		To:      acct.Email,
		From:    n.from,
		Subject: fmt.Sprintf("Skyfare invoice %s", inv.InvoiceNumber),
		Body: fmt.Sprintf(
			"Dear %s,\n\nInvoice %s for the period %s to %s is ready.\nTotal: %s\nOutstanding: %s\nDue date: %s\n\nSkyfare Billing",
			acct.Name, inv.InvoiceNumber,
			inv.PeriodStart.Format("2006-01-02"), inv.PeriodEnd.Format("2006-01-02"),
			inv.TotalAmount, outstanding, inv.DueDate.Format("2006-01-02")),
	})

	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Message = sendErr.Error()
	} else {
		entry.Status = StatusSent
		entry.Message = "delivered to gateway"
	}

	// The log row is written regardless of delivery outcome.
	if err := n.store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("record email log: %w", err)
	}
	metrics.InvoiceEmailsTotal.WithLabelValues(string(entry.Status)).Inc()

	if sendErr != nil {
		return entry, fmt.Errorf("send invoice email: %w", sendErr)
	}
	return entry, nil
}
