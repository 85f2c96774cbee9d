// Package admin serves the back-office dashboard aggregate and the key/value
// system settings store.
package admin

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/money"
	"github.com/skyfare/skyfare/internal/topup"
)

var ErrSettingNotFound = errors.New("setting not found")

// Setting is one system configuration entry.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SettingsStore persists system settings.
type SettingsStore interface {
	Get(ctx context.Context, key string) (*Setting, error)
	List(ctx context.Context) ([]*Setting, error)
	Put(ctx context.Context, key, value string) (*Setting, error)
}

// Dashboard is the back-office summary view.
type Dashboard struct {
	TotalAgents        int    `json:"totalAgents"`
	ActiveAgents       int    `json:"activeAgents"`
	PendingTopups      int    `json:"pendingTopups"`
	TotalCreditLimit   string `json:"totalCreditLimit"`
	TotalCreditUsed    string `json:"totalCreditUsed"`
	CreditUtilization  string `json:"creditUtilization"` // percentage, 2dp
	OutstandingInvoice string `json:"outstandingInvoiceAmount"`
}

// AgentSource supplies agent accounts for aggregation.
type AgentSource interface {
	ListAccounts(ctx context.Context, activeOnly bool) ([]*ledger.Account, error)
}

// TopupSource supplies pending top-up requests for aggregation.
type TopupSource interface {
	List(ctx context.Context, agentID string, status topup.Status, limit int) ([]*topup.Request, error)
}

// InvoiceSource supplies the outstanding receivable total.
type InvoiceSource interface {
	OutstandingTotal(ctx context.Context) (string, error)
}

// Service aggregates the dashboard and fronts the settings store.
type Service struct {
	agents   AgentSource
	topups   TopupSource
	invoices InvoiceSource
	settings SettingsStore
}

// NewService creates an admin service.
func NewService(agents AgentSource, topups TopupSource, invoices InvoiceSource, settings SettingsStore) *Service {
	return &Service{agents: agents, topups: topups, invoices: invoices, settings: settings}
}

// Dashboard computes the current back-office summary.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	accounts, err := s.agents.ListAccounts(ctx, false)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TotalAgents:      len(accounts),
		TotalCreditLimit: money.Zero,
		TotalCreditUsed:  money.Zero,
	}
	for _, a := range accounts {
		if a.IsActive {
			d.ActiveAgents++
		}
		d.TotalCreditLimit, err = money.Add(d.TotalCreditLimit, a.CreditLimit)
		if err != nil {
			return nil, err
		}
		d.TotalCreditUsed, err = money.Add(d.TotalCreditUsed, a.CreditUsed)
		if err != nil {
			return nil, err
		}
	}
	d.CreditUtilization = utilization(d.TotalCreditUsed, d.TotalCreditLimit)

	pending, err := s.topups.List(ctx, "", topup.StatusPending, 1000)
	if err != nil {
		return nil, err
	}
	d.PendingTopups = len(pending)

	d.OutstandingInvoice, err = s.invoices.OutstandingTotal(ctx)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Settings returns all system settings.
func (s *Service) Settings(ctx context.Context) ([]*Setting, error) {
	return s.settings.List(ctx)
}

// PutSetting creates or updates one setting.
func (s *Service) PutSetting(ctx context.Context, key, value string) (*Setting, error) {
	return s.settings.Put(ctx, key, value)
}

// utilization renders used/limit as a percentage with two decimals.
func utilization(used, limit string) string {
	u, err1 := money.Parse(used)
	l, err2 := money.Parse(limit)
	if err1 != nil || err2 != nil || l.Sign() == 0 {
		return money.Zero
	}
	// used * 10000 / limit gives basis points, reuse the 2dp formatter.
	pct := new(big.Int).Mul(u, big.NewInt(10000))
	pct.Quo(pct, l)
	return money.Format(pct)
}
