// Package books provides database operations for the catalog.
//
// The repository is a thin layer over gorm. The availability flag is only
// flipped through ClaimAvailable and SetAvailable, which the ledger calls
// inside its transactions; Update writes whatever the caller passes and is
// the staff escape hatch.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, err := repo.GetBookByID(123)
package books

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
)

var ErrBookNotFound = errors.New("book not found")

// ListColumns describes the searchable and sortable columns of the book lists.
var ListColumns = listing.Columns{
	SearchColumns: []string{"books.title", "books.author"},
	Sortable: map[string]string{
		"title":            "books.title",
		"author":           "books.author",
		"isbn":             "books.isbn",
		"publication_date": "books.publication_date",
		"available":        "books.available",
	},
	DefaultOrder: "title",
	Key:          "books.id",
}

// Repository handles all catalog database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(book *entities.Book) error {
	return r.db.Create(book).Error
}

// Update saves every column of book, including the availability flag.
func (r *Repository) Update(book *entities.Book) error {
	return r.db.Save(book).Error
}

// GetBookByID retrieves a book by its ID.
func (r *Repository) GetBookByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.First(&book, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// LockBookByID loads a book holding a row lock until the surrounding
// transaction ends. sqlite has no row locks; there the transaction itself
// already holds the database write lock.
func (r *Repository) LockBookByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *Repository) FindByISBN(isbn string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Where("isbn = ?", isbn).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *Repository) Exists(id uint) (bool, error) {
	var count int64
	err := r.db.Model(&entities.Book{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ClaimAvailable atomically flips an available book to unavailable. It
// reports false when the book is missing or already unavailable.
func (r *Repository) ClaimAvailable(id uint) (bool, error) {
	result := r.db.Model(&entities.Book{}).
		Where("id = ? AND available = ?", id, true).
		Update("available", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) SetAvailable(id uint, available bool) error {
	return r.db.Model(&entities.Book{}).Where("id = ?", id).Update("available", available).Error
}

func (r *Repository) Delete(id uint) error {
	result := r.db.Delete(&entities.Book{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// List returns one page of the whole catalog.
func (r *Repository) List(q listing.Query) (listing.Page[entities.Book], error) {
	return listing.Find[entities.Book](r.db.Model(&entities.Book{}), ListColumns, q)
}

// ListAvailable returns one page of books that can be borrowed right now.
func (r *Repository) ListAvailable(q listing.Query) (listing.Page[entities.Book], error) {
	base := r.db.Model(&entities.Book{}).Where("books.available = ?", true)
	return listing.Find[entities.Book](base, ListColumns, q)
}

// FindAvailabilityDrift returns books whose flag disagrees with the loans
// table: flagged available while an open loan exists, or flagged unavailable
// with no open loan.
// openLoan is a correlated subquery matching an open loan of the outer books row.
func (r *Repository) openLoan() *gorm.DB {
	return r.db.Session(&gorm.Session{NewDB: true}).
		Table("borrowings").
		Select("1").
		Where("borrowings.book_id = books.id AND borrowings.return_date IS NULL")
}

func (r *Repository) FindAvailabilityDrift() ([]entities.Book, error) {
	open := r.openLoan()

	var drift []entities.Book
	err := r.db.Model(&entities.Book{}).
		Where("(books.available = ? AND EXISTS (?)) OR (books.available = ? AND NOT EXISTS (?))", true, open, false, open).
		Order("books.id ASC").
		Find(&drift).Error
	return drift, err
}

// RecomputeAvailable sets the flag from the loans table in a single statement,
// so a loan closed concurrently is never overwritten, and returns the new value.
func (r *Repository) RecomputeAvailable(id uint) (bool, error) {
	result := r.db.Model(&entities.Book{}).
		Where("books.id = ?", id).
		Update("available", gorm.Expr("NOT EXISTS (?)", r.openLoan()))
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, ErrBookNotFound
	}

	var book entities.Book
	if err := r.db.Select("available").First(&book, id).Error; err != nil {
		return false, err
	}
	return book.Available, nil
}
