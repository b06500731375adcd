package library

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/database/capabilities"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
)

func TestRegistry_CreateGrantsAndDeleteRevokes(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()
	dave := lib.createUser(t, "dave", entities.UserRoleMember)
	assert.Empty(t, lib.holds(t, dave))

	borrower, err := lib.registry.CreateBorrower(ctx, BorrowerInput{UserID: dave.UserID, Name: "Dave Grohl"})
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowerCapabilities, lib.holds(t, dave))
	require.NotNil(t, borrower.User)
	assert.Equal(t, "dave", borrower.User.Username)

	require.NoError(t, lib.registry.DeleteBorrower(ctx, borrower.ID))
	assert.Empty(t, lib.holds(t, dave))

	_, err = lib.registry.GetBorrower(ctx, borrower.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RepointMovesCapabilities(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()
	dave := lib.createUser(t, "dave", entities.UserRoleMember)

	updated, err := lib.registry.UpdateBorrower(ctx, lib.aliceBorrower.ID, BorrowerInput{UserID: dave.UserID, Name: "Dave Grohl", PhoneNumber: "555-0199"})
	require.NoError(t, err)
	assert.Equal(t, dave.UserID, updated.UserID)
	assert.Equal(t, "555-0199", updated.PhoneNumber)

	assert.Empty(t, lib.holds(t, lib.alice))
	assert.Equal(t, entities.BorrowerCapabilities, lib.holds(t, dave))
}

func TestRegistry_UpdateKeepingPrincipal(t *testing.T) {
	lib := setupLibrary(t)

	updated, err := lib.registry.UpdateBorrower(context.Background(), lib.aliceBorrower.ID, BorrowerInput{UserID: lib.alice.UserID, Name: "Alice Pleasance Liddell"})
	require.NoError(t, err)
	assert.Equal(t, "Alice Pleasance Liddell", updated.Name)
	assert.Equal(t, entities.BorrowerCapabilities, lib.holds(t, lib.alice))
}

func TestRegistry_RejectsStaffBorrower(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()

	_, err := lib.registry.CreateBorrower(ctx, BorrowerInput{UserID: lib.librarian.UserID, Name: "The Librarian"})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, ErrStaffBorrower)
	assert.Empty(t, lib.holds(t, lib.librarian))

	_, err = lib.registry.UpdateBorrower(ctx, lib.aliceBorrower.ID, BorrowerInput{UserID: lib.admin.UserID, Name: "Admin"})
	assert.ErrorIs(t, err, ErrStaffBorrower)
	assert.Equal(t, entities.BorrowerCapabilities, lib.holds(t, lib.alice), "failed update must not move capabilities")
}

func TestRegistry_OneBorrowerPerPrincipal(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()

	_, err := lib.registry.CreateBorrower(ctx, BorrowerInput{UserID: lib.alice.UserID, Name: "Second Alice"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrAlreadyBorrower)

	_, err = lib.registry.UpdateBorrower(ctx, lib.bobBorrower.ID, BorrowerInput{UserID: lib.alice.UserID, Name: "Bob"})
	assert.ErrorIs(t, err, ErrAlreadyBorrower)
	assert.Equal(t, entities.BorrowerCapabilities, lib.holds(t, lib.bob))
}

func TestRegistry_Validation(t *testing.T) {
	lib := setupLibrary(t)
	dave := lib.createUser(t, "dave", entities.UserRoleMember)

	tests := []struct {
		name  string
		input BorrowerInput
		kind  error
	}{
		{"missing user", BorrowerInput{Name: "Nobody"}, ErrInvalid},
		{"missing name", BorrowerInput{UserID: dave.UserID, Name: "   "}, ErrInvalid},
		{"phone too long", BorrowerInput{UserID: dave.UserID, Name: "Dave", PhoneNumber: "+1 555 0100 0200 03"}, ErrInvalid},
		{"unknown user", BorrowerInput{UserID: 9999, Name: "Ghost"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.registry.CreateBorrower(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
	assert.Empty(t, lib.holds(t, dave))
}

func TestRegistry_DeleteGuard(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()
	book := lib.addBook(t, "Dune", "9780441013593")
	loan, err := lib.ledger.BorrowBook(ctx, lib.alice, book.ID, "")
	require.NoError(t, err)

	err = lib.registry.DeleteBorrower(ctx, lib.aliceBorrower.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrPendingReturns)
	_, err = lib.registry.GetBorrower(ctx, lib.aliceBorrower.ID)
	require.NoError(t, err, "guarded borrower must still exist")
	assert.Equal(t, entities.BorrowerCapabilities, lib.holds(t, lib.alice))

	_, err = lib.ledger.ReturnBook(ctx, lib.alice, loan.ID)
	require.NoError(t, err)
	require.NoError(t, lib.registry.DeleteBorrower(ctx, lib.aliceBorrower.ID))

	stored, err := lib.ledger.GetBorrowing(ctx, loan.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.BorrowerID, "closed loan survives with the borrower reference cleared")
	assert.NotNil(t, stored.BookID)
	assert.Empty(t, lib.holds(t, lib.alice))
}

func TestRegistry_DeleteMissing(t *testing.T) {
	lib := setupLibrary(t)
	err := lib.registry.DeleteBorrower(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ListAndLookup(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()

	page, err := lib.registry.ListBorrowers(ctx, listing.Query{Search: "BOB"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, lib.bobBorrower.ID, page.Items[0].ID)

	borrower, err := lib.registry.BorrowerForUser(ctx, lib.alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, lib.aliceBorrower.ID, borrower.ID)

	_, err = lib.registry.BorrowerForUser(ctx, lib.carol.UserID)
	assert.ErrorIs(t, err, ErrNoBorrowerRecord)
}

func TestRegistry_CapabilitySyncIsAtomic(t *testing.T) {
	t.Run("failed grant rolls back the new borrower", func(t *testing.T) {
		lib := setupLibrary(t)
		dave := lib.createUser(t, "dave", entities.UserRoleMember)
		require.NoError(t, lib.db.Where("codename = ?", entities.CapabilityReturn).Delete(&entities.Capability{}).Error)

		_, err := lib.registry.CreateBorrower(context.Background(), BorrowerInput{UserID: dave.UserID, Name: "Dave Grohl"})
		require.Error(t, err)
		assert.ErrorIs(t, err, capabilities.ErrUnknownCapability)

		var count int64
		require.NoError(t, lib.db.Model(&entities.Borrower{}).Where("user_id = ?", dave.UserID).Count(&count).Error)
		assert.Zero(t, count)
		assert.Empty(t, lib.holds(t, dave))
	})

	t.Run("failed grant after revoke keeps the old principal", func(t *testing.T) {
		lib := setupLibrary(t)
		dave := lib.createUser(t, "dave", entities.UserRoleMember)
		// Revoking from alice succeeds, granting to dave does not
		require.NoError(t, lib.db.Exec(fmt.Sprintf(
			"CREATE TRIGGER reject_grant BEFORE INSERT ON user_capabilities WHEN NEW.user_id = %d BEGIN SELECT RAISE(ABORT, 'grant rejected'); END",
			dave.UserID,
		)).Error)

		_, err := lib.registry.UpdateBorrower(context.Background(), lib.aliceBorrower.ID, BorrowerInput{UserID: dave.UserID, Name: "Dave Grohl"})
		require.Error(t, err)
		assert.Equal(t, KindInternal, KindOf(err))

		borrower, err := lib.registry.GetBorrower(context.Background(), lib.aliceBorrower.ID)
		require.NoError(t, err)
		assert.Equal(t, lib.alice.UserID, borrower.UserID)
		assert.Equal(t, "Alice Liddell", borrower.Name)
		assert.Equal(t, entities.BorrowerCapabilities, lib.holds(t, lib.alice))
		assert.Empty(t, lib.holds(t, dave))
	})
}
