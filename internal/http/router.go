package http

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
	"github.com/mrlokans/librarian/internal/tasks"
)

// Landing paths after login.
const (
	StaffLandingPath    = "/api/books"
	BorrowerLandingPath = "/api/available"
	MemberLandingPath   = "/api/catalog"
)

// LandingFor picks where a user goes after logging in: staff to the book
// list, borrowers to the available books, everyone else to the catalog.
func LandingFor(policy *library.Policy) auth.LandingFunc {
	return func(user *entities.User) string {
		if user.IsStaff() {
			return StaffLandingPath
		}
		borrower, err := policy.IsBorrower(library.PrincipalFromUser(user))
		if err != nil {
			log.Printf("Landing page: capability lookup for user %d failed: %v", user.ID, err)
			return MemberLandingPath
		}
		if borrower {
			return BorrowerLandingPath
		}
		return MemberLandingPath
	}
}

// Router is the configured engine plus the pieces that need stopping.
type Router struct {
	*gin.Engine
	authController *auth.AuthController
}

// Stop releases background resources held by the router.
func (r *Router) Stop() {
	if r.authController != nil {
		r.authController.Stop()
	}
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) (*Router, error) {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(CORSMiddleware(cfg.AllowedOrigins))
	}

	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.AuthConfig.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware(31536000))
	}

	// CSRF must run before session so that session context is preserved
	router.Use(auth.CSRFMiddleware(auth.CSRFConfig{
		Secret:         cfg.CSRFSecret,
		Secure:         cfg.AuthConfig.SecureCookies,
		TrustedOrigins: cfg.AllowedOrigins,
	}, cfg.AuthService))

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	router.Use(cfg.SessionManager.SessionLoadSave())
	authMiddleware := auth.NewMiddleware(cfg.AuthService, cfg.SessionManager, cfg.AuthConfig)
	router.Use(authMiddleware.Handler())
	staff := router.Group("/api", authMiddleware.RequireRole(entities.UserRoleAdmin, entities.UserRoleLibrarian))

	authController, err := auth.NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.TemplatesPath, cfg.AuthConfig)
	if err != nil {
		return nil, err
	}
	landing := LandingFor(cfg.Policy)
	authController.SetLanding(landing)
	if cfg.Audit != nil {
		authController.SetAuditLogger(cfg.Audit)
	}
	authController.RegisterRoutes(router)

	tokenController := auth.NewAPITokenController(cfg.AuthService)
	router.POST("/api/auth/token", tokenController.GenerateToken)
	router.DELETE("/api/auth/token", tokenController.RevokeToken)

	profile := NewProfileController(cfg.AuthService, cfg.Registry, cfg.Capabilities, landing)
	router.GET("/api/me", profile.Profile)
	router.POST("/api/me/password", profile.ChangePassword)

	health := NewHealthController(cfg.Database, cfg.Version)
	if cfg.Maintenance != nil {
		health.SetScheduler(cfg.Maintenance)
	}
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	// A nil *audit.Service must stay a nil interface.
	var (
		catalogAudit     CatalogAuditor
		registryAudit    RegistryAuditor
		loanAudit        LoanAuditor
		maintenanceAudit tasks.MaintenanceLogger
	)
	if cfg.Audit != nil {
		catalogAudit, registryAudit, loanAudit, maintenanceAudit = cfg.Audit, cfg.Audit, cfg.Audit, cfg.Audit
	}

	books := NewBooksController(cfg.Catalog, cfg.Policy, catalogAudit, cfg.BooksPageSize, cfg.PageSize)
	staff.GET("/books", books.ListBooks)
	staff.POST("/books", books.CreateBook)
	router.GET("/api/books/:id", books.GetBook)
	staff.PUT("/books/:id", books.UpdateBook)
	staff.DELETE("/books/:id", books.DeleteBook)
	router.GET("/api/available", books.ListAvailable)
	router.GET("/api/catalog", books.ListCatalog)

	borrowers := NewBorrowersController(cfg.Registry, cfg.Policy, registryAudit, cfg.PageSize)
	staff.GET("/borrowers", borrowers.ListBorrowers)
	staff.POST("/borrowers", borrowers.CreateBorrower)
	staff.GET("/borrowers/:id", borrowers.GetBorrower)
	staff.PUT("/borrowers/:id", borrowers.UpdateBorrower)
	staff.DELETE("/borrowers/:id", borrowers.DeleteBorrower)

	loans := NewLoansController(cfg.Ledger, cfg.Policy, loanAudit, cfg.PageSize)
	router.POST("/api/borrow", loans.Borrow)
	router.POST("/api/return", loans.Return)
	staff.GET("/loans/pending", loans.PendingLoans)
	staff.GET("/loans/history", loans.LoanHistory)
	router.GET("/api/loans/:id", loans.GetBorrowing)
	router.GET("/api/me/loans/pending", loans.MyPendingLoans)
	router.GET("/api/me/loans/history", loans.MyLoanHistory)

	maintenance := NewMaintenanceController(cfg.Ledger, cfg.Policy, maintenanceAudit, cfg.TaskQueue)
	staff.POST("/admin/reconcile", maintenance.Reconcile)
	staff.GET("/admin/tasks/:id", maintenance.GetTaskStatus)

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit, cfg.Policy)
		staff.GET("/audit", auditController.GetAuditEvents)
		staff.GET("/audit/requests/:id", auditController.GetRequestTrail)
	}

	return &Router{Engine: router, authController: authController}, nil
}
