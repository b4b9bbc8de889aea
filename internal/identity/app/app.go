package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asia-shop/identity/internal/identity/audit"
	httpapi "github.com/asia-shop/identity/internal/identity/http"
	"github.com/asia-shop/identity/internal/identity/notify"
	"github.com/asia-shop/identity/internal/identity/service"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/internal/identity/store/drivers/sqlite"
	"github.com/asia-shop/identity/internal/identity/totp"
	"github.com/asia-shop/identity/pkg/cryptox"
	"github.com/asia-shop/identity/pkg/jwtx"
	"github.com/asia-shop/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	keyPair *jwtx.EdDSAKeyPair
	auditor *audit.Dispatcher

	// Services
	userService         *service.UserService
	authService         *service.AuthService
	mfaService          *service.MFAService
	emailOTPService     *service.EmailOTPService
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initKeys(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initAudit()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Drain the audit queue before the database goes away
	app.auditor.Close()
	if dropped := app.auditor.Dropped(); dropped > 0 {
		app.logger.Warn("audit events dropped during runtime", "count", dropped)
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initKeys loads the token signing key, or generates an ephemeral one when
// no seed file is configured. Ephemeral keys invalidate outstanding tokens
// on restart, which is acceptable for dev.
func (app *Application) initKeys() error {
	if app.cfg.TokenSeedFile == "" {
		kp, err := jwtx.NewEdDSAKeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate signing key: %w", err)
		}
		app.keyPair = kp
		app.logger.Warn("using ephemeral signing key, tokens will not survive restart")
		return nil
	}

	seed, err := os.ReadFile(app.cfg.TokenSeedFile)
	if err != nil {
		return fmt.Errorf("failed to read token seed file: %w", err)
	}
	kp, err := jwtx.NewEdDSAKeyPairFromSeed(seed)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	app.keyPair = kp
	return nil
}

// initAudit wires the async audit pipeline: events fan out to the structured
// log and the audit_log table.
func (app *Application) initAudit() {
	sink := audit.MultiSink{
		&audit.SlogSink{Logger: app.logger},
		&audit.StoreSink{Store: app.db},
	}
	app.auditor = audit.NewDispatcher(audit.Config{
		Enabled:    app.cfg.AuditEnabled,
		BufferSize: app.cfg.AuditBufferSize,
		DropIfFull: true,
	}, sink)
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.userService = &service.UserService{Store: app.db}

	notifier := &notify.LogNotifier{Logger: app.logger}

	app.mfaService = &service.MFAService{
		Store:    app.db,
		TOTP:     &totp.Engine{Issuer: app.cfg.Issuer},
		Notifier: notifier,
		Audit:    app.auditor,
		Logger:   app.logger,
		SetupTTL: app.cfg.SetupSessionTTL,
	}

	app.emailOTPService = &service.EmailOTPService{
		Store:    app.db,
		Notifier: notifier,
		Audit:    app.auditor,
		Logger:   app.logger,
	}

	app.sessionService = &service.SessionService{
		Store:    app.db,
		Notifier: notifier,
		Audit:    app.auditor,
		Logger:   app.logger,
	}

	app.authService = &service.AuthService{
		Store:    app.db,
		MFA:      app.mfaService,
		Sessions: app.sessionService,
		Signer:   app.keyPair,
		Issuer:   app.cfg.Issuer,
		TokenTTL: app.cfg.AccessTokenTTL,
		Audit:    app.auditor,
		Logger:   app.logger,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyPair,
		app.keyPair,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.AuthService = app.authService
	router.UserService = app.userService
	router.MFAService = app.mfaService
	router.EmailOTPService = app.emailOTPService
	router.SessionService = app.sessionService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
