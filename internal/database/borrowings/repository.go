// Package borrowings provides database operations for loan records.
//
// A loan is open while return_date is NULL. Close only ever moves a loan
// from open to closed, so a closed loan keeps its original return date.
package borrowings

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
)

var ErrBorrowingNotFound = errors.New("borrowing not found")

const loanJoins = "LEFT JOIN borrowers ON borrowers.id = borrowings.borrower_id " +
	"LEFT JOIN books ON books.id = borrowings.book_id"

// ListColumns searches loans by borrower name and book title.
var ListColumns = listing.Columns{
	SearchColumns: []string{"borrowers.name", "books.title"},
	Sortable: map[string]string{
		"borrow_date": "borrowings.borrow_date",
		"return_date": "borrowings.return_date",
		"book":        "books.title",
		"borrower":    "borrowers.name",
	},
	DefaultOrder: "borrow_date",
	Key:          "borrowings.id",
	Select:       "borrowings.*",
	Preloads:     []string{"Book", "Borrower"},
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(borrowing *entities.Borrowing) error {
	return r.db.Omit("Book", "Borrower").Create(borrowing).Error
}

// GetByID loads a loan together with its book and borrower, when they still exist.
func (r *Repository) GetByID(id uint) (*entities.Borrowing, error) {
	var borrowing entities.Borrowing
	err := r.db.Preload("Book").Preload("Borrower").First(&borrowing, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBorrowingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &borrowing, nil
}

// Close sets the return date of an open loan. It reports false when the loan
// is missing or was already closed.
func (r *Repository) Close(id uint, returnedAt time.Time) (bool, error) {
	result := r.db.Model(&entities.Borrowing{}).
		Where("id = ? AND return_date IS NULL", id).
		Update("return_date", returnedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) CountOpenForBook(bookID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Borrowing{}).
		Where("book_id = ? AND return_date IS NULL", bookID).
		Count(&count).Error
	return count, err
}

func (r *Repository) CountOpenForBorrower(borrowerID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Borrowing{}).
		Where("borrower_id = ? AND return_date IS NULL", borrowerID).
		Count(&count).Error
	return count, err
}

// DetachBook clears the book reference on every loan of a book about to be deleted.
func (r *Repository) DetachBook(bookID uint) error {
	return r.db.Model(&entities.Borrowing{}).
		Where("book_id = ?", bookID).
		Update("book_id", nil).Error
}

// DetachBorrower clears the borrower reference on every loan of a borrower about to be deleted.
func (r *Repository) DetachBorrower(borrowerID uint) error {
	return r.db.Model(&entities.Borrowing{}).
		Where("borrower_id = ?", borrowerID).
		Update("borrower_id", nil).Error
}

// ListPending returns open loans. A non-nil borrowerID restricts the list to one borrower.
func (r *Repository) ListPending(borrowerID *uint, q listing.Query) (listing.Page[entities.Borrowing], error) {
	return listing.Find[entities.Borrowing](r.scoped(borrowerID).Where("borrowings.return_date IS NULL"), ListColumns, q)
}

// ListHistory returns closed loans. A non-nil borrowerID restricts the list to one borrower.
func (r *Repository) ListHistory(borrowerID *uint, q listing.Query) (listing.Page[entities.Borrowing], error) {
	return listing.Find[entities.Borrowing](r.scoped(borrowerID).Where("borrowings.return_date IS NOT NULL"), ListColumns, q)
}

func (r *Repository) scoped(borrowerID *uint) *gorm.DB {
	query := r.db.Model(&entities.Borrowing{}).Joins(loanJoins)
	if borrowerID != nil {
		query = query.Where("borrowings.borrower_id = ?", *borrowerID)
	}
	return query
}
