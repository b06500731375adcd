// Package interfaces documents the core abstractions used throughout the application.
//
// The HTTP layer, the task queue and the CLI all depend on small interfaces
// declared next to their consumers. The concrete implementations live in
// internal/library, internal/audit and the internal/database sub-packages.
//
// # Interface Categories
//
// ## Library Core
//
//   - CatalogStore: book CRUD and listings (internal/http/books.go)
//   - RegistryStore, BorrowerLookup: borrower records (internal/http/borrowers.go, users.go)
//   - LedgerStore: borrow, return and loan listings (internal/http/loans.go)
//   - Authorizer: role and capability checks (internal/http/books.go)
//   - AvailabilityChecker: drift check and repair (internal/tasks/check_availability.go)
//
// ## Data Access Interfaces
//
//   - CapabilityChecker: capability reads for the policy (internal/library/policy.go)
//   - CapabilityLister: capabilities shown on the profile (internal/http/users.go)
//   - Pinger: database health (internal/http/health.go)
//
// ## Audit Interfaces
//
//   - CatalogAuditor, RegistryAuditor, LoanAuditor: write-side audit hooks
//   - AuditReader: audit queries (internal/http/audit.go)
//   - AuthLogger: login, logout and signup events (internal/auth/handlers.go)
//   - MaintenanceLogger, AuditEventCleaner: task side (internal/tasks/)
//
// ## Background Work
//
//   - TaskQueue: enqueue and poll reconcile tasks (internal/http/maintenance.go)
//   - Enqueuer: scheduled maintenance (internal/scheduler/maintenance.go)
//
// # Adding a New Maintenance Task
//
//  1. Define the task and its processor in internal/tasks/
//
//     type RecountLoansTask struct{}
//
//     func (t RecountLoansTask) Config() backlite.QueueConfig {
//         return backlite.QueueConfig{Name: "recount_loans", MaxAttempts: 3}
//     }
//
//     func NewRecountLoansQueue(store LoanCounter) backlite.Queue {
//         return backlite.NewQueue(RecountLoansProcessor(store))
//     }
//
//  2. Register the queue in entrypoint.go
//
//  3. Enqueue it from MaintenanceScheduler.RunNow or an admin endpoint
//
// # Adding a New Database Domain
//
// To add a new data domain (e.g., reservations):
//
//  1. Create sub-package: internal/database/reservations/
//
//  2. Define repository:
//
//     type Repository struct { db *gorm.DB }
//
//     func NewRepository(db *gorm.DB) *Repository
//
//  3. Open repositories on the transaction handle inside library operations
//     so that every write of one operation commits together.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// This pattern is used throughout the codebase. See checks.go for examples.
package interfaces
