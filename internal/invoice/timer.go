package invoice

import (
	"context"
	"sync"
	"time"

	"github.com/skyfare/skyfare/internal/logging"
)

// Timer drives scheduled invoice work: on the 1st and 16th it generates the
// cycle that just closed, and every tick it sweeps unpaid invoices past their
// due date to OVERDUE. Cycle generation is idempotent, so a restarted process
// re-running a boundary day is harmless.
type Timer struct {
	svc      *Service
	interval time.Duration

	mu      sync.Mutex
	lastRun string // "2006-01-02" of the last cycle generation
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTimer creates a timer over the invoice service. interval defaults to
// one hour when zero.
func NewTimer(svc *Service, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Timer{svc: svc, interval: interval}
}

// Start launches the timer loop. Call Stop to halt it.
func (t *Timer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.Tick(ctx, time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t.Tick(ctx, now)
			}
		}
	}()
}

// Stop halts the timer loop and waits for it to exit.
func (t *Timer) Stop() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

// Tick runs one scheduled pass for the given clock reading.
func (t *Timer) Tick(ctx context.Context, now time.Time) {
	if n, err := t.svc.SweepOverdue(ctx); err != nil {
		logging.L(ctx).Error("overdue sweep failed", "error", err)
	} else if n > 0 {
		logging.L(ctx).Info("invoices marked overdue", "count", n)
	}

	if now.Day() != 1 && now.Day() != 16 {
		return
	}

	day := now.Format("2006-01-02")
	t.mu.Lock()
	if t.lastRun == day {
		t.mu.Unlock()
		return
	}
	t.lastRun = day
	t.mu.Unlock()

	start, _ := PreviousPeriod(now)
	res, err := t.svc.GenerateForCycle(ctx, start)
	if err != nil {
		logging.L(ctx).Error("scheduled invoice cycle failed", "error", err)
		return
	}
	logging.L(ctx).Info("scheduled invoice cycle run",
		"generated", res.Generated, "skipped", res.Skipped)
}
