package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/database/listing"
)

func validBook() BookInput {
	return BookInput{
		Title:           "Dune",
		Author:          "Frank Herbert",
		ISBN:            "978-0-441-01359-3",
		PublicationDate: time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCatalog_CreateBook(t *testing.T) {
	lib := setupLibrary(t)

	book, err := lib.catalog.CreateBook(context.Background(), validBook())
	require.NoError(t, err)
	assert.NotZero(t, book.ID)
	assert.Equal(t, "9780441013593", book.ISBN)
	assert.True(t, book.Available)
}

func TestCatalog_CreateBookValidation(t *testing.T) {
	lib := setupLibrary(t)

	tests := []struct {
		name   string
		mutate func(*BookInput)
	}{
		{"missing title", func(in *BookInput) { in.Title = "  " }},
		{"missing author", func(in *BookInput) { in.Author = "" }},
		{"short isbn", func(in *BookInput) { in.ISBN = "12345" }},
		{"letters in isbn", func(in *BookInput) { in.ISBN = "97804410135AB" }},
		{"missing publication date", func(in *BookInput) { in.PublicationDate = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validBook()
			tt.mutate(&in)
			_, err := lib.catalog.CreateBook(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestCatalog_ISBNFormats(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()

	for _, isbn := range []string{"1234567890", "080442957x", "9780141439587"} {
		in := validBook()
		in.ISBN = isbn
		_, err := lib.catalog.CreateBook(ctx, in)
		assert.NoError(t, err, isbn)
	}
}

func TestCatalog_DuplicateISBN(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()

	_, err := lib.catalog.CreateBook(ctx, validBook())
	require.NoError(t, err)

	_, err = lib.catalog.CreateBook(ctx, validBook())
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	other := validBook()
	other.ISBN = "9780141439587"
	emma, err := lib.catalog.CreateBook(ctx, other)
	require.NoError(t, err)

	clash := validBook()
	_, err = lib.catalog.UpdateBook(ctx, emma.ID, clash)
	assert.ErrorIs(t, err, ErrDuplicateISBN)
}

func TestCatalog_UpdateBook(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()
	book, err := lib.catalog.CreateBook(ctx, validBook())
	require.NoError(t, err)

	in := validBook()
	in.Title = "Dune Messiah"
	updated, err := lib.catalog.UpdateBook(ctx, book.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.True(t, updated.Available, "nil Available keeps the flag")

	_, err = lib.catalog.UpdateBook(ctx, 9999, in)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_DeleteGuard(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()
	b2 := lib.addBook(t, "Emma", "9780141439587")
	loan, err := lib.ledger.BorrowBook(ctx, lib.alice, b2.ID, "")
	require.NoError(t, err)

	err = lib.catalog.DeleteBook(ctx, b2.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrPendingReturns)
	lib.reloadBook(t, b2.ID)

	_, err = lib.ledger.ReturnBook(ctx, lib.alice, loan.ID)
	require.NoError(t, err)
	require.NoError(t, lib.catalog.DeleteBook(ctx, b2.ID))

	_, err = lib.catalog.GetBook(ctx, b2.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := lib.ledger.GetBorrowing(ctx, loan.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.BookID, "closed loan survives with the book reference cleared")
	assert.Nil(t, stored.Book)
	assert.NotNil(t, stored.BorrowerID)
}

func TestCatalog_DeleteMissing(t *testing.T) {
	lib := setupLibrary(t)
	err := lib.catalog.DeleteBook(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_Lists(t *testing.T) {
	lib := setupLibrary(t)
	ctx := context.Background()
	dune := lib.addBook(t, "Dune", "9780441013593")
	lib.addBook(t, "Emma", "9780141439587")
	_, err := lib.ledger.BorrowBook(ctx, lib.alice, dune.ID, "")
	require.NoError(t, err)

	all, err := lib.catalog.ListBooks(ctx, listing.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	available, err := lib.catalog.ListAvailable(ctx, listing.Query{})
	require.NoError(t, err)
	require.Len(t, available.Items, 1)
	assert.Equal(t, "Emma", available.Items[0].Title)
}
