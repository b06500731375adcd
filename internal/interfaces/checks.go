package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/cli"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/capabilities"
	"github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/library"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// =============================================================================
// Library Core
// =============================================================================

var _ http.CatalogStore = (*library.Catalog)(nil)
var _ http.RegistryStore = (*library.Registry)(nil)
var _ http.BorrowerLookup = (*library.Registry)(nil)
var _ http.LedgerStore = (*library.Ledger)(nil)
var _ http.Authorizer = (*library.Policy)(nil)

// Availability reconciliation
var _ tasks.AvailabilityChecker = (*library.Ledger)(nil)
var _ cli.AvailabilityReconciler = (*library.Ledger)(nil)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ library.CapabilityChecker = (*capabilities.Repository)(nil)
var _ http.CapabilityLister = (*capabilities.Repository)(nil)
var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// Audit Trail
// =============================================================================

var _ http.CatalogAuditor = (*audit.Service)(nil)
var _ http.RegistryAuditor = (*audit.Service)(nil)
var _ http.LoanAuditor = (*audit.Service)(nil)
var _ http.AuditReader = (*audit.Service)(nil)
var _ auth.AuthLogger = (*audit.Service)(nil)
var _ tasks.MaintenanceLogger = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)

// =============================================================================
// Background Work
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)
var _ http.SchedulerStatus = (*scheduler.MaintenanceScheduler)(nil)
