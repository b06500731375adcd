// Package borrowers provides database operations for the borrower registry.
package borrowers

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
)

var ErrBorrowerNotFound = errors.New("borrower not found")

var ListColumns = listing.Columns{
	SearchColumns: []string{"borrowers.name"},
	Sortable: map[string]string{
		"name":         "borrowers.name",
		"phone_number": "borrowers.phone_number",
	},
	DefaultOrder: "name",
	Key:          "borrowers.id",
	Preloads:     []string{"User"},
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(borrower *entities.Borrower) error {
	return r.db.Omit("User").Create(borrower).Error
}

func (r *Repository) Update(borrower *entities.Borrower) error {
	return r.db.Omit("User").Save(borrower).Error
}

func (r *Repository) GetByID(id uint) (*entities.Borrower, error) {
	var borrower entities.Borrower
	err := r.db.Preload("User").First(&borrower, id).Error
	return found(&borrower, err)
}

// LockByID loads a borrower holding a row lock for the rest of the transaction.
func (r *Repository) LockByID(id uint) (*entities.Borrower, error) {
	var borrower entities.Borrower
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&borrower, id).Error
	return found(&borrower, err)
}

// GetByUserID returns the borrower record linked to a principal.
func (r *Repository) GetByUserID(userID uint) (*entities.Borrower, error) {
	var borrower entities.Borrower
	err := r.db.Where("user_id = ?", userID).First(&borrower).Error
	return found(&borrower, err)
}

// ShareLockByUserID is GetByUserID holding a shared lock, so the record cannot
// be deleted or repointed while a loan is being written against it.
func (r *Repository) ShareLockByUserID(userID uint) (*entities.Borrower, error) {
	var borrower entities.Borrower
	err := r.db.Clauses(clause.Locking{Strength: "SHARE"}).Where("user_id = ?", userID).First(&borrower).Error
	return found(&borrower, err)
}

func (r *Repository) Delete(id uint) error {
	result := r.db.Delete(&entities.Borrower{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBorrowerNotFound
	}
	return nil
}

func (r *Repository) List(q listing.Query) (listing.Page[entities.Borrower], error) {
	return listing.Find[entities.Borrower](r.db.Model(&entities.Borrower{}), ListColumns, q)
}

func found(borrower *entities.Borrower, err error) (*entities.Borrower, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		return nil, err
	}
	return borrower, nil
}
