// Package metrics provides Prometheus instrumentation for the billing engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skyfare",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skyfare",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LedgerOpsTotal counts ledger mutations by type (debit, credit, topup).
	LedgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skyfare",
			Name:      "ledger_operations_total",
			Help:      "Total ledger operations by type.",
		},
		[]string{"type"},
	)

	// TicketsTotal counts ticket lifecycle transitions by resulting state.
	TicketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skyfare",
			Name:      "tickets_total",
			Help:      "Total ticket lifecycle transitions by resulting state.",
		},
		[]string{"state"},
	)

	// InvoicesGeneratedTotal counts invoices materialized by cycle runs.
	InvoicesGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skyfare",
		Name:      "invoices_generated_total",
		Help:      "Total invoices generated.",
	})

	// PaymentsTotal counts payment applications by final status.
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skyfare",
			Name:      "payments_total",
			Help:      "Total payment applications by final status.",
		},
		[]string{"status"},
	)

	// InvoiceEmailsTotal counts invoice email deliveries by result.
	InvoiceEmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skyfare",
			Name:      "invoice_emails_total",
			Help:      "Total invoice email delivery attempts by result.",
		},
		[]string{"result"},
	)

	// DB pool gauges
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyfare", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyfare", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyfare", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyfare", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LedgerOpsTotal,
		TicketsTotal,
		InvoicesGeneratedTotal,
		PaymentsTotal,
		InvoiceEmailsTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// statusBucket collapses status codes to their class (2xx, 4xx, ...).
func statusBucket(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// Handler returns the Prometheus scrape endpoint as a gin handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
