// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (sqlite or postgres), migrations, capability seeding
//	├── books/           # Catalog store
//	├── borrowers/       # Borrower registry
//	├── borrowings/      # Loan ledger rows (open and closed loans)
//	├── capabilities/    # Grant / revoke / check principal capabilities
//	├── users/           # Principals
//	├── audit/           # Audit events
//	└── listing/         # Search, ordering and pagination scopes shared by list views
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type built on a *gorm.DB. Because the
// repositories only hold a handle, they are cheap to construct on a
// transaction:
//
//	db, err := database.NewSQLite("./librarian.db")
//
//	err = db.DB.Transaction(func(tx *gorm.DB) error {
//		claimed, err := books.NewRepository(tx).ClaimAvailable(bookID)
//		...
//		return borrowings.NewRepository(tx).Create(loan)
//	})
//
// Repositories translate gorm.ErrRecordNotFound into their own sentinel
// errors (books.ErrBookNotFound, borrowers.ErrBorrowerNotFound, ...).
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Implement the required interface
//  5. Add compile-time interface check in internal/interfaces
package database
