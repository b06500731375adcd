package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/capabilities"
	"github.com/mrlokans/librarian/internal/entities"
)

type testLibrary struct {
	db       *gorm.DB
	caps     *capabilities.Repository
	policy   *Policy
	catalog  *Catalog
	registry *Registry
	ledger   *Ledger

	admin     Principal
	librarian Principal
	alice     Principal
	bob       Principal
	carol     Principal // member without a borrower record

	aliceBorrower *entities.Borrower
	bobBorrower   *entities.Borrower
}

func setupLibrary(t *testing.T) *testLibrary {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	caps := capabilities.NewRepository(db.DB)
	policy := NewPolicy(caps)
	lib := &testLibrary{
		db:       db.DB,
		caps:     caps,
		policy:   policy,
		catalog:  NewCatalog(db.DB),
		registry: NewRegistry(db.DB),
		ledger:   NewLedger(db.DB, policy),
	}

	lib.admin = lib.createUser(t, "admin", entities.UserRoleAdmin)
	lib.librarian = lib.createUser(t, "librarian", entities.UserRoleLibrarian)
	lib.alice = lib.createUser(t, "alice", entities.UserRoleMember)
	lib.bob = lib.createUser(t, "bob", entities.UserRoleMember)
	lib.carol = lib.createUser(t, "carol", entities.UserRoleMember)

	lib.aliceBorrower = lib.registerBorrower(t, lib.alice, "Alice Liddell")
	lib.bobBorrower = lib.registerBorrower(t, lib.bob, "Bob Dylan")
	return lib
}

func (lib *testLibrary) createUser(t *testing.T, username string, role entities.UserRole) Principal {
	t.Helper()
	user := &entities.User{Username: username, Email: username + "@example.com", Role: role}
	require.NoError(t, lib.db.Create(user).Error)
	return PrincipalFromUser(user)
}

func (lib *testLibrary) registerBorrower(t *testing.T, p Principal, name string) *entities.Borrower {
	t.Helper()
	borrower, err := lib.registry.CreateBorrower(context.Background(), BorrowerInput{UserID: p.UserID, Name: name, PhoneNumber: "555-0100"})
	require.NoError(t, err)
	return borrower
}

func (lib *testLibrary) addBook(t *testing.T, title, isbn string) *entities.Book {
	t.Helper()
	book, err := lib.catalog.CreateBook(context.Background(), BookInput{
		Title:           title,
		Author:          "Author of " + title,
		ISBN:            isbn,
		PublicationDate: time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return book
}

func (lib *testLibrary) reloadBook(t *testing.T, id uint) *entities.Book {
	t.Helper()
	book, err := lib.catalog.GetBook(context.Background(), id)
	require.NoError(t, err)
	return book
}

func (lib *testLibrary) countLoans(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, lib.db.Model(&entities.Borrowing{}).Count(&count).Error)
	return count
}

// assertAvailabilityConsistent checks that every availability flag agrees with the loans table.
func (lib *testLibrary) assertAvailabilityConsistent(t *testing.T) {
	t.Helper()
	drift, err := lib.ledger.CheckAvailability(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift, "availability flags disagree with open loans")
}

func (lib *testLibrary) holds(t *testing.T, p Principal) []string {
	t.Helper()
	codenames, err := lib.caps.ListForUser(p.UserID)
	require.NoError(t, err)
	return codenames
}
