package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/edudesk/internal/cache/adapter"
	"github.com/vadim/edudesk/internal/cache/port"
	"github.com/vadim/edudesk/internal/config"
	httpcontroller "github.com/vadim/edudesk/internal/controller/http"
	"github.com/vadim/edudesk/internal/database"
	directorydao "github.com/vadim/edudesk/internal/domain/directory/dao"
	directoryservice "github.com/vadim/edudesk/internal/domain/directory/service"
	"github.com/vadim/edudesk/internal/domain/messaging/dao"
	"github.com/vadim/edudesk/internal/domain/messaging/entity"
	"github.com/vadim/edudesk/internal/domain/messaging/policy"
	"github.com/vadim/edudesk/internal/domain/messaging/service"
	"github.com/vadim/edudesk/internal/storage"
)

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	pool  *pgxpool.Pool
	cache port.Cache

	// Domain policies (interfaces for HTTP handlers)
	messagingPolicy *policy.Policy

	// Attachment storage; nil when no bucket is configured
	attachments *storage.S3Storage
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Initialize router with middleware
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(30 * time.Second))

	app := &App{
		cfg:    cfg,
		router: r,
		logger: logger,
	}

	// Initialize infrastructure
	if err := app.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	// Initialize domain layers
	if err := app.initDomains(ctx); err != nil {
		return nil, fmt.Errorf("initializing domains: %w", err)
	}

	// Register routes
	app.registerRoutes()

	// Initialize HTTP server
	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure initializes infrastructure components (DB, cache, S3)
func (a *App) initInfrastructure(ctx context.Context) error {
	if a.cfg.Database.PostgresDSN == "" {
		return errors.New("DATABASE_URL is required")
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Database.PostgresDSN,
		a.cfg.Database.MaxConns, a.cfg.Database.MinConns)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	if err := database.Bootstrap(ctx, pool); err != nil {
		return fmt.Errorf("bootstrapping schema: %w", err)
	}

	if a.cfg.Redis.URL != "" {
		cache, err := adapter.NewRedisCache(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.cache = cache
	} else {
		a.logger.Info("REDIS_URL not set, using in-process directory cache")
		a.cache = adapter.NewMemoryCache()
	}

	if a.cfg.S3.Bucket != "" {
		s3Storage, err := storage.NewS3Storage(storage.S3Config{
			Endpoint:        a.cfg.S3.Endpoint,
			AccessKeyID:     a.cfg.S3.AccessKeyID,
			SecretAccessKey: a.cfg.S3.SecretAccessKey,
			Bucket:          a.cfg.S3.Bucket,
			Region:          a.cfg.S3.Region,
			PublicURL:       a.cfg.S3.PublicURL,
		})
		if err != nil {
			return fmt.Errorf("initializing attachment storage: %w", err)
		}
		a.attachments = s3Storage
	} else {
		a.logger.Info("S3_BUCKET not set, attachment uploads disabled")
	}

	return nil
}

// initDomains initializes domain layers (DAO, Service, Policy)
func (a *App) initDomains(ctx context.Context) error {
	// Directory: cached read-through over the school roster tables
	directoryRepo := directorydao.NewDirectoryPostgres(a.pool)
	directorySvc := directoryservice.New(directoryRepo, a.cache, a.cfg.Redis.TTL)
	directory := &directoryAdapter{svc: directorySvc}

	// Messaging core
	convRepo := dao.NewConversationPostgres(a.pool)
	msgRepo := dao.NewMessagePostgres(a.pool)
	messagingSvc := service.New(convRepo, msgRepo, directory)

	a.messagingPolicy = policy.New(messagingSvc, directory)

	return nil
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() {
	// Health check
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)

	// API v1
	a.router.Route("/api/v1", func(r chi.Router) {
		var uploads httpcontroller.AttachmentUploader
		if a.attachments != nil {
			uploads = a.attachments
		}
		msgHandler := httpcontroller.NewMessagingHandler(a.messagingPolicy, uploads)
		msgHandler.RegisterRoutes(r)
	})
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler handles readiness check requests
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := a.pool.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	// Channel to receive errors from server
	errCh := make(chan error, 1)

	// Start HTTP server in goroutine
	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}

	a.logger.Info("shutdown complete")
	return nil
}

// directoryAdapter adapts the directory service to the messaging layer's
// provider interfaces
type directoryAdapter struct {
	svc *directoryservice.Service
}

func (d *directoryAdapter) GetUser(ctx context.Context, schoolID, userID string) (*service.DirectoryUser, error) {
	user, err := d.svc.GetUser(ctx, schoolID, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return &service.DirectoryUser{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      entity.Role(user.Role),
	}, nil
}

func (d *directoryAdapter) ListUsersByRole(ctx context.Context, schoolID string, role entity.Role) ([]service.DirectoryUser, error) {
	users, err := d.svc.ListUsersByRole(ctx, schoolID, string(role))
	if err != nil {
		return nil, err
	}
	out := make([]service.DirectoryUser, 0, len(users))
	for _, u := range users {
		out = append(out, service.DirectoryUser{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      entity.Role(u.Role),
		})
	}
	return out, nil
}

func (d *directoryAdapter) GetClass(ctx context.Context, schoolID, classID string) (*service.DirectoryClass, error) {
	class, err := d.svc.GetClass(ctx, schoolID, classID)
	if err != nil {
		return nil, err
	}
	if class == nil {
		return nil, nil
	}
	return &service.DirectoryClass{ID: class.ID, Name: class.Name}, nil
}

func (d *directoryAdapter) ListClassStudents(ctx context.Context, schoolID, classID string) ([]service.DirectoryUser, error) {
	students, err := d.svc.ListClassStudents(ctx, schoolID, classID)
	if err != nil {
		return nil, err
	}
	out := make([]service.DirectoryUser, 0, len(students))
	for _, u := range students {
		out = append(out, service.DirectoryUser{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      entity.Role(u.Role),
		})
	}
	return out, nil
}
