package http

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/library"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Library core
	Catalog  *library.Catalog
	Registry *library.Registry
	Ledger   *library.Ledger
	Policy   *library.Policy

	// Capability store, read by the profile endpoint
	Capabilities CapabilityLister

	// Health checks; nil reports the database as not configured
	Database Pinger

	// Audit logging (optional)
	Audit *audit.Service

	// Authentication
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	AuthConfig     config.Auth
	CSRFSecret     []byte

	// CORS allow list; empty disables the CORS middleware
	AllowedOrigins []string

	// Page sizes for list endpoints
	BooksPageSize int
	PageSize      int

	// Task queue client (optional)
	TaskQueue TaskQueue

	// Maintenance scheduler, reported by /health (optional)
	Maintenance SchedulerStatus

	// Optional auth page templates, rendered from <TemplatesPath>/auth/*.html
	TemplatesPath string

	// Application info
	Version string
}
