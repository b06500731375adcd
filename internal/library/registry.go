package library

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/borrowers"
	"github.com/mrlokans/librarian/internal/database/borrowings"
	"github.com/mrlokans/librarian/internal/database/capabilities"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/database/users"
	"github.com/mrlokans/librarian/internal/entities"
)

const (
	maxNameLength  = 255
	maxPhoneLength = 15
)

type BorrowerInput struct {
	UserID      uint
	Name        string
	PhoneNumber string
}

func (in *BorrowerInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
}

func (in BorrowerInput) validate(op string) error {
	switch {
	case in.UserID == 0:
		return invalid(op, "user is required")
	case in.Name == "":
		return invalid(op, "name is required")
	case len(in.Name) > maxNameLength:
		return invalid(op, "name must be at most %d characters", maxNameLength)
	case len(in.PhoneNumber) > maxPhoneLength:
		return invalid(op, "phone number must be at most %d characters", maxPhoneLength)
	}
	return nil
}

// Registry manages borrower records. A principal holds the borrower
// capabilities exactly while a borrower record points at it, and every
// change to that link updates the capabilities in the same transaction.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) CreateBorrower(ctx context.Context, in BorrowerInput) (*entities.Borrower, error) {
	const op = "create borrower"
	in.normalize()
	if err := in.validate(op); err != nil {
		return nil, err
	}

	borrower := &entities.Borrower{UserID: in.UserID, Name: in.Name, PhoneNumber: in.PhoneNumber}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := eligibleUser(op, tx, in.UserID, 0)
		if err != nil {
			return err
		}
		if err := borrowers.NewRepository(tx).Create(borrower); err != nil {
			return translateBorrowerWrite(op, err)
		}
		if err := syncCapabilities(tx, 0, borrower.UserID); err != nil {
			return internal(op, err)
		}
		borrower.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return borrower, nil
}

// UpdateBorrower edits a borrower. Repointing it to another principal moves
// the borrower capabilities from the old principal to the new one.
func (r *Registry) UpdateBorrower(ctx context.Context, id uint, in BorrowerInput) (*entities.Borrower, error) {
	const op = "update borrower"
	in.normalize()
	if err := in.validate(op); err != nil {
		return nil, err
	}

	var borrower *entities.Borrower
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := borrowers.NewRepository(tx)

		var err error
		borrower, err = repo.LockByID(id)
		if errors.Is(err, borrowers.ErrBorrowerNotFound) {
			return notFound(op, ErrBorrowerNotFound)
		}
		if err != nil {
			return internal(op, err)
		}

		user, err := eligibleUser(op, tx, in.UserID, borrower.ID)
		if err != nil {
			return err
		}

		previousUserID := borrower.UserID
		borrower.UserID = in.UserID
		borrower.Name = in.Name
		borrower.PhoneNumber = in.PhoneNumber
		if err := repo.Update(borrower); err != nil {
			return translateBorrowerWrite(op, err)
		}
		if err := syncCapabilities(tx, previousUserID, borrower.UserID); err != nil {
			return internal(op, err)
		}
		borrower.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return borrower, nil
}

// DeleteBorrower removes a borrower with no open loan and revokes the
// borrower capabilities from its principal. Closed loans are kept with the
// borrower reference cleared.
func (r *Registry) DeleteBorrower(ctx context.Context, id uint) error {
	const op = "delete borrower"
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := borrowers.NewRepository(tx)
		loans := borrowings.NewRepository(tx)

		borrower, err := repo.LockByID(id)
		if errors.Is(err, borrowers.ErrBorrowerNotFound) {
			return notFound(op, ErrBorrowerNotFound)
		}
		if err != nil {
			return internal(op, err)
		}

		open, err := loans.CountOpenForBorrower(id)
		if err != nil {
			return internal(op, err)
		}
		if open > 0 {
			return conflict(op, ErrPendingReturns)
		}

		if err := loans.DetachBorrower(id); err != nil {
			return internal(op, err)
		}
		if err := repo.Delete(id); err != nil {
			return internal(op, err)
		}
		if err := syncCapabilities(tx, borrower.UserID, 0); err != nil {
			return internal(op, err)
		}
		return nil
	})
}

func (r *Registry) GetBorrower(ctx context.Context, id uint) (*entities.Borrower, error) {
	borrower, err := borrowers.NewRepository(r.db.WithContext(ctx)).GetByID(id)
	if errors.Is(err, borrowers.ErrBorrowerNotFound) {
		return nil, notFound("get borrower", ErrBorrowerNotFound)
	}
	if err != nil {
		return nil, internal("get borrower", err)
	}
	return borrower, nil
}

// BorrowerForUser returns the borrower record linked to a principal.
func (r *Registry) BorrowerForUser(ctx context.Context, userID uint) (*entities.Borrower, error) {
	borrower, err := borrowers.NewRepository(r.db.WithContext(ctx)).GetByUserID(userID)
	if errors.Is(err, borrowers.ErrBorrowerNotFound) {
		return nil, notFound("get borrower", ErrNoBorrowerRecord)
	}
	if err != nil {
		return nil, internal("get borrower", err)
	}
	return borrower, nil
}

func (r *Registry) ListBorrowers(ctx context.Context, q listing.Query) (listing.Page[entities.Borrower], error) {
	page, err := borrowers.NewRepository(r.db.WithContext(ctx)).List(q)
	if err != nil {
		return page, internal("list borrowers", err)
	}
	return page, nil
}

// eligibleUser loads the principal a borrower is about to point at and
// checks it is neither staff nor already linked to another borrower.
func eligibleUser(op string, tx *gorm.DB, userID, borrowerID uint) (*entities.User, error) {
	user, err := users.NewRepository(tx).GetUserByID(userID)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, notFound(op, ErrUserNotFound)
	}
	if err != nil {
		return nil, internal(op, err)
	}
	if user.IsStaff() {
		return nil, invalidReason(op, ErrStaffBorrower)
	}

	existing, err := borrowers.NewRepository(tx).GetByUserID(userID)
	switch {
	case errors.Is(err, borrowers.ErrBorrowerNotFound):
		return user, nil
	case err != nil:
		return nil, internal(op, err)
	case existing.ID != borrowerID:
		return nil, conflict(op, ErrAlreadyBorrower)
	}
	return user, nil
}

// syncCapabilities revokes the borrower capabilities from the principal a
// borrower used to point at and grants them to the one it points at now.
// Zero means "no principal". Granting is idempotent, so an update that keeps
// the principal re-grants harmlessly. It must run on the transaction of the
// registry write.
func syncCapabilities(tx *gorm.DB, oldUserID, newUserID uint) error {
	store := capabilities.NewRepository(tx)
	if oldUserID != 0 && oldUserID != newUserID {
		if err := store.Revoke(oldUserID, entities.BorrowerCapabilities...); err != nil {
			return err
		}
	}
	if newUserID != 0 {
		if err := store.Grant(newUserID, entities.BorrowerCapabilities...); err != nil {
			return err
		}
	}
	return nil
}

func translateBorrowerWrite(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conflict(op, ErrAlreadyBorrower)
	}
	return internal(op, err)
}
