// Package server wires the billing services together and serves the HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/skyfare/skyfare/internal/admin"
	"github.com/skyfare/skyfare/internal/auth"
	"github.com/skyfare/skyfare/internal/booking"
	"github.com/skyfare/skyfare/internal/config"
	"github.com/skyfare/skyfare/internal/emaillog"
	"github.com/skyfare/skyfare/internal/health"
	"github.com/skyfare/skyfare/internal/invoice"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/logging"
	"github.com/skyfare/skyfare/internal/metrics"
	"github.com/skyfare/skyfare/internal/payment"
	"github.com/skyfare/skyfare/internal/ratelimit"
	"github.com/skyfare/skyfare/internal/security"
	"github.com/skyfare/skyfare/internal/ticket"
	"github.com/skyfare/skyfare/internal/topup"
	"github.com/skyfare/skyfare/internal/traces"
	"github.com/skyfare/skyfare/internal/validation"
)

// Server composes stores, services, and the HTTP surface.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db      *sql.DB
	router  *gin.Engine
	httpSrv *http.Server

	ledger     *ledger.Ledger
	topups     *topup.Service
	bookings   booking.Store
	tickets    *ticket.Service
	invoices   *invoice.Service
	payments   *payment.Service
	notifier   *emaillog.Notifier
	backoffice *admin.Service

	authMgr      *auth.Manager
	rateLimiter  *ratelimit.Limiter
	invoiceTimer *invoice.Timer
	healthReg    *health.Registry

	shutdownTraces func(context.Context) error
	cancelRunCtx   context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// New creates a fully wired server. When cfg.DatabaseURL is set all stores
// run on PostgreSQL; otherwise everything is in-memory (demo mode).
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		format := "text"
		if cfg.IsProduction() {
			format = "json"
		}
		s.logger = logging.New(cfg.LogLevel, format)
	}
	s.healthy.Store(true)

	ctx := context.Background()

	var (
		ledgerStore   ledger.Store
		topupStore    topup.Store
		bookingStore  booking.Store
		ticketStore   ticket.Store
		invoiceStore  invoice.Store
		paymentStore  payment.Store
		emailStore    emaillog.Store
		settingsStore admin.SettingsStore
		authStore     auth.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		s.db = db
		s.logger.Info("connected to PostgreSQL", "dsn", maskDSN(cfg.DatabaseURL))

		ledgerPG := ledger.NewPostgresStore(db)
		topupPG := topup.NewPostgresStore(db)
		bookingPG := booking.NewPostgresStore(db)
		ticketPG := ticket.NewPostgresStore(db)
		invoicePG := invoice.NewPostgresStore(db)
		paymentPG := payment.NewPostgresStore(db)
		emailPG := emaillog.NewPostgresStore(db)
		settingsPG := admin.NewPostgresSettingsStore(db)
		authPG := auth.NewPostgresStore(db)

		// Order matters: later tables reference earlier ones.
		for _, m := range []struct {
			name string
			migrator
		}{
			{"ledger", ledgerPG},
			{"topup", topupPG},
			{"booking", bookingPG},
			{"ticket", ticketPG},
			{"invoice", invoicePG},
			{"payment", paymentPG},
			{"emaillog", emailPG},
			{"settings", settingsPG},
			{"auth", authPG},
		} {
			if err := m.Migrate(ctx); err != nil {
				s.logger.Warn("migration failed", "store", m.name, "error", err)
			}
		}

		ledgerStore = ledgerPG
		topupStore = topupPG
		bookingStore = bookingPG
		ticketStore = ticketPG
		invoiceStore = invoicePG
		paymentStore = paymentPG
		emailStore = emailPG
		settingsStore = settingsPG
		authStore = authPG
	} else {
		s.logger.Info("no DATABASE_URL set, using in-memory stores")
		ledgerStore = ledger.NewMemoryStore()
		topupStore = topup.NewMemoryStore()
		bookingStore = booking.NewMemoryStore()
		ticketStore = ticket.NewMemoryStore()
		invoiceStore = invoice.NewMemoryStore()
		paymentStore = payment.NewMemoryStore()
		emailStore = emaillog.NewMemoryStore()
		settingsStore = admin.NewMemorySettingsStore()
		authStore = auth.NewMemoryStore()
	}

	// Services. Cross-package collaborators are wired through the setter
	// hooks so the package import graph stays acyclic.
	s.ledger = ledger.New(ledgerStore)
	s.topups = topup.NewService(topupStore, s.ledger, cfg.MaxTopupAmount)
	s.bookings = bookingStore
	s.tickets = ticket.NewService(ticketStore, bookingStore, s.ledger)
	s.invoices = invoice.NewService(invoiceStore, ticketStore, s.ledger, nil, cfg.InvoiceGraceDays)
	s.tickets.SetInvoiceAdjuster(s.invoices)

	var verifier payment.CardVerifier
	if cfg.StripeAPIKey != "" {
		verifier = payment.NewStripeVerifier(cfg.StripeAPIKey)
		s.logger.Info("card verification enabled")
	}
	s.payments = payment.NewService(paymentStore, s.invoices, s.ledger, verifier, cfg.Currency)

	var gateway emaillog.MailGateway
	if cfg.MailGatewayURL != "" {
		gateway = emaillog.NewHTTPGateway(cfg.MailGatewayURL, 0)
	} else {
		gateway = emaillog.LogGateway{}
	}
	s.notifier = emaillog.NewNotifier(emailStore, gateway, s.ledger, s.invoices, cfg.MailFrom)
	s.invoices.SetMailer(s.notifier)

	s.backoffice = admin.NewService(s.ledger, s.topups, invoiceStore, settingsStore)

	s.authMgr = auth.NewManager(authStore)
	if cfg.AdminSecret != "" {
		if err := s.authMgr.SeedKey(ctx, cfg.AdminSecret, auth.RoleAdmin, "", "bootstrap admin"); err != nil {
			return nil, fmt.Errorf("seed admin key: %w", err)
		}
	} else if cfg.IsDevelopment() {
		rawKey, _, err := s.authMgr.GenerateKey(ctx, auth.RoleAdmin, "", "dev admin")
		if err != nil {
			return nil, fmt.Errorf("generate dev admin key: %w", err)
		}
		s.logger.Warn("no ADMIN_SECRET set, generated a dev admin key", "apiKey", rawKey)
	}

	s.invoiceTimer = invoice.NewTimer(s.invoices, 0)

	s.healthReg = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRPS * 60,
		BurstSize:         cfg.RateLimitRPS,
		CleanupInterval:   time.Minute,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(s.rateLimiter.Middleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request", attrs...)
		case status >= 400:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.infoHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	ledgerH := ledger.NewHandlers(s.ledger)
	topupH := topup.NewHandlers(s.topups)
	bookingH := booking.NewHandlers(s.bookings, s.cfg.Currency)
	ticketH := ticket.NewHandlers(s.tickets)
	invoiceH := invoice.NewHandlers(s.invoices)
	paymentH := payment.NewHandlers(s.payments)
	emailH := emaillog.NewHandlers(s.notifier)
	adminH := admin.NewHandlers(s.backoffice)

	v1 := s.router.Group("/v1")

	// Agent portal: every route is scoped to the authenticated agent.
	agents := v1.Group("")
	agents.Use(auth.Middleware(s.authMgr), auth.RequireAuth(), auth.RequireAgent())
	{
		ledgerH.RegisterAgent(agents)
		topupH.RegisterAgent(agents)
		bookingH.RegisterAgent(agents)
		ticketH.RegisterAgent(agents)
		invoiceH.RegisterAgent(agents)
		paymentH.RegisterAgent(agents)
	}

	// Back office.
	backoffice := v1.Group("/admin")
	backoffice.Use(auth.Middleware(s.authMgr), auth.RequireAuth(), auth.RequireAdmin())
	{
		ledgerH.RegisterAdmin(backoffice)
		topupH.RegisterAdmin(backoffice)
		invoiceH.RegisterAdmin(backoffice)
		emailH.RegisterAdmin(backoffice)
		adminH.RegisterAdmin(backoffice)
		backoffice.POST("/agents/:id/api-keys", s.createAgentKey)
	}
}

// createAgentKey mints a portal API key for an existing agent. The raw key
// is returned once and stored only as a hash.
func (s *Server) createAgentKey(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := c.Param("id")

	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "portal key"
	}

	if _, err := s.ledger.GetAccount(ctx, agentID); err != nil {
		if errors.Is(err, ledger.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "agent not found"})
			return
		}
		logging.L(ctx).Error("agent lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}

	rawKey, p, err := s.authMgr.GenerateKey(ctx, auth.RoleAgent, agentID, req.Name)
	if err != nil {
		logging.L(ctx).Error("key generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "an unexpected error occurred"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"apiKey":  rawKey,
		"keyId":   p.ID,
		"agentId": agentID,
		"warning": "Store this API key securely. It will not be shown again.",
	})
}

// HealthResponse for health check endpoints.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Skyfare",
		"description": "Agent billing and credit ledger for travel bookings",
		"version":     "0.1.0",
		"currency":    s.cfg.Currency,
	})
}

// Run starts the HTTP server and blocks until a shutdown signal or context
// cancellation, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	if s.cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("trace exporter init failed", "error", err)
		} else {
			s.shutdownTraces = shutdown
		}
	}

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.invoiceTimer.Start(runCtx)

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.invoiceTimer.Stop()
	s.logger.Info("invoice timer stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// AuthManager returns the auth manager for testing and seeding.
func (s *Server) AuthManager() *auth.Manager {
	return s.authMgr
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable)"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			// Unreserved characters only, so String() does not percent-encode
			// the mask.
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
