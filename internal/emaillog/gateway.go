package emaillog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/skyfare/skyfare/internal/logging"
)

// HTTPGateway delivers email through an external HTTP mail service: one JSON
// POST per message, bounded by a timeout, non-2xx treated as failure.
type HTTPGateway struct {
	url    string
	client *http.Client
}

// NewHTTPGateway creates a gateway posting to the given URL.
func NewHTTPGateway(url string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send implements MailGateway.
func (g *HTTPGateway) Send(ctx context.Context, e Email) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to mail gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mail gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogGateway is the demo-mode gateway: it logs the email and reports success.
type LogGateway struct{}

// Send implements MailGateway.
func (LogGateway) Send(ctx context.Context, e Email) error {
	logging.L(ctx).Info("email (demo mode, not delivered)",
		"to", e.To, "subject", e.Subject)
	return nil
}
