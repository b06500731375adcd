package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	auditRepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/capabilities"
	http_controllers "github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/library"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(handler http.Handler, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill -2 is SIGINT; SIGKILL cannot be caught
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	// Background workers stop after the last request has finished
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

// Library bundles the core services shared by the server and the CLI.
type Library struct {
	DB           *database.Database
	Capabilities *capabilities.Repository
	Policy       *library.Policy
	Catalog      *library.Catalog
	Registry     *library.Registry
	Ledger       *library.Ledger
	Audit        *audit.Service
}

// OpenLibrary connects to the configured database, migrates it and builds
// the library services on top of it.
func OpenLibrary(cfg *config.Config) (*Library, error) {
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	caps := capabilities.NewRepository(db.DB)
	policy := library.NewPolicy(caps)
	return &Library{
		DB:           db,
		Capabilities: caps,
		Policy:       policy,
		Catalog:      library.NewCatalog(db.DB),
		Registry:     library.NewRegistry(db.DB),
		Ledger:       library.NewLedger(db.DB, policy),
		Audit:        audit.NewService(auditRepo.NewRepository(db.DB)),
	}, nil
}

// Close flushes pending audit writes and closes the database.
func (l *Library) Close() error {
	l.Audit.Wait()
	return l.DB.Close()
}

func csrfSecret(cfg config.Auth) []byte {
	if cfg.SessionSecret != "" {
		secret, err := hex.DecodeString(cfg.SessionSecret)
		if err != nil {
			// Not hex, use as raw bytes
			return []byte(cfg.SessionSecret)
		}
		return secret
	}

	secret, err := auth.GenerateSessionSecret()
	if err != nil {
		log.Fatalf("Failed to generate CSRF secret: %v", err)
	}
	raw, _ := hex.DecodeString(secret)
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return raw
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Librarian v%s", version)

	lib, err := OpenLibrary(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := lib.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()
	log.Printf("Database: %s", lib.DB.Driver)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.FromConfig(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewCheckAvailabilityQueue(lib.Ledger, lib.Audit),
			tasks.NewCleanupAuditEventsQueue(lib.Audit),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// Maintenance needs the task queue to run its jobs
	var maintenance *scheduler.MaintenanceScheduler
	var schedulerCancel context.CancelFunc
	if cfg.Maintenance.Enabled && taskClient != nil {
		maintenance = scheduler.NewMaintenanceScheduler(taskClient, cfg.Maintenance.Schedule, cfg.Audit.RetentionDays, cfg.Maintenance.Repair)

		var schedulerCtx context.Context
		schedulerCtx, schedulerCancel = context.WithCancel(context.Background())
		if err := maintenance.Start(schedulerCtx); err != nil {
			log.Printf("WARNING: Maintenance scheduler disabled: %v", err)
			schedulerCancel()
			maintenance = nil
		}
	} else if cfg.Maintenance.Enabled {
		log.Printf("WARNING: Maintenance is enabled but the task queue is not; scheduled reconcile is disabled")
	}

	authService := auth.NewService(lib.DB.DB, cfg.Auth)

	sqlDB, err := lib.DB.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get SQL DB for sessions: %v", err)
	}
	sessionManager, err := auth.NewSessionManager(sqlDB, lib.DB.Driver, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	if hasUsers, _ := authService.HasUsers(); !hasUsers {
		log.Printf("No users found. POST to /setup or run `librarian create-user` to create an administrator account.")
	}

	routerCfg := http_controllers.RouterConfig{
		Catalog:        lib.Catalog,
		Registry:       lib.Registry,
		Ledger:         lib.Ledger,
		Policy:         lib.Policy,
		Capabilities:   lib.Capabilities,
		Database:       lib.DB,
		Audit:          lib.Audit,
		AuthService:    authService,
		SessionManager: sessionManager,
		AuthConfig:     cfg.Auth,
		CSRFSecret:     csrfSecret(cfg.Auth),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		BooksPageSize:  cfg.Listing.BooksPageSize,
		PageSize:       cfg.Listing.PageSize,
		Version:        version,
	}
	// Nil pointers must stay nil interfaces
	if taskClient != nil {
		routerCfg.TaskQueue = taskClient
	}
	if maintenance != nil {
		routerCfg.Maintenance = maintenance
	}

	router, err := http_controllers.NewRouter(routerCfg)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	onShutdown := func(ctx context.Context) {
		if maintenance != nil {
			maintenance.Stop()
			schedulerCancel()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
		router.Stop()
	}

	Serve(router, cfg, onShutdown)
}
