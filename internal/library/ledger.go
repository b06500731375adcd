package library

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/books"
	"github.com/mrlokans/librarian/internal/database/borrowers"
	"github.com/mrlokans/librarian/internal/database/borrowings"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/database/users"
	"github.com/mrlokans/librarian/internal/entities"
)

// AvailabilityDrift is a book whose availability flag disagrees with the
// loans table.
type AvailabilityDrift struct {
	BookID   uint   `json:"book_id"`
	Title    string `json:"title"`
	Flagged  bool   `json:"flagged_available"`
	Expected bool   `json:"expected_available"`
}

// Ledger owns the loan state machine. A loan is created OPEN by BorrowBook
// and moved to CLOSED once by ReturnBook; both keep the book's availability
// flag equal to "no open loan references this book".
type Ledger struct {
	db     *gorm.DB
	policy *Policy
	now    func() time.Time
}

func NewLedger(db *gorm.DB, policy *Policy) *Ledger {
	return &Ledger{db: db, policy: policy, now: time.Now}
}

// BorrowBook lends a book to the borrower linked to username. An empty
// username means the caller. Staff may borrow on behalf of any borrower;
// everyone else may only borrow for themselves and needs can_borrow.
func (l *Ledger) BorrowBook(ctx context.Context, caller Principal, bookID uint, username string) (*entities.Borrowing, error) {
	const op = "borrow"
	if !caller.Authenticated() {
		return nil, unauthorized(op, ErrNotAuthenticated)
	}

	target := username
	if target == "" {
		target = caller.Username
	}
	if !caller.IsStaff() {
		if target != caller.Username {
			return nil, unauthorized(op, ErrStaffOnly)
		}
		if err := l.policy.Authorize(ctx, caller, OpBorrow); err != nil {
			return nil, err
		}
	}

	var loan *entities.Borrowing
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := users.NewRepository(tx).GetUserByUsername(target)
		if errors.Is(err, users.ErrUserNotFound) {
			return notFound(op, ErrUserNotFound)
		}
		if err != nil {
			return internal(op, err)
		}

		borrower, err := borrowers.NewRepository(tx).ShareLockByUserID(user.ID)
		if errors.Is(err, borrowers.ErrBorrowerNotFound) {
			return notFound(op, ErrNoBorrowerRecord)
		}
		if err != nil {
			return internal(op, err)
		}

		catalog := books.NewRepository(tx)
		claimed, err := catalog.ClaimAvailable(bookID)
		if err != nil {
			return internal(op, err)
		}
		if !claimed {
			exists, err := catalog.Exists(bookID)
			if err != nil {
				return internal(op, err)
			}
			if !exists {
				return notFound(op, ErrBookNotFound)
			}
			return conflict(op, ErrBookNotAvailable)
		}

		loan = &entities.Borrowing{
			BorrowerID: &borrower.ID,
			BookID:     &bookID,
			BorrowDate: l.now(),
		}
		if err := borrowings.NewRepository(tx).Create(loan); err != nil {
			return internal(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ReturnBook closes an open loan and makes its book available again. The
// caller must own the loan and hold can_return, or be staff. Returning a
// closed loan is a Conflict and writes nothing.
func (l *Ledger) ReturnBook(ctx context.Context, caller Principal, borrowingID uint) (*entities.Borrowing, error) {
	const op = "return"
	if !caller.Authenticated() {
		return nil, unauthorized(op, ErrNotAuthenticated)
	}
	if !caller.IsStaff() {
		if err := l.policy.Authorize(ctx, caller, OpReturn); err != nil {
			return nil, err
		}
	}

	var loan *entities.Borrowing
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loans := borrowings.NewRepository(tx)

		var err error
		loan, err = loans.GetByID(borrowingID)
		if errors.Is(err, borrowings.ErrBorrowingNotFound) {
			return notFound(op, ErrNotBorrowed)
		}
		if err != nil {
			return internal(op, err)
		}

		if !caller.IsStaff() {
			own, err := borrowers.NewRepository(tx).GetByUserID(caller.UserID)
			if errors.Is(err, borrowers.ErrBorrowerNotFound) {
				return unauthorized(op, ErrNoBorrowerRecord)
			}
			if err != nil {
				return internal(op, err)
			}
			if loan.BorrowerID == nil || *loan.BorrowerID != own.ID {
				return unauthorized(op, ErrNotYourLoan)
			}
		}

		returnedAt := l.now()
		closed, err := loans.Close(loan.ID, returnedAt)
		if err != nil {
			return internal(op, err)
		}
		if !closed {
			return conflict(op, ErrAlreadyReturned)
		}
		loan.ReturnDate = &returnedAt

		if loan.BookID != nil {
			if err := books.NewRepository(tx).SetAvailable(*loan.BookID, true); err != nil {
				return internal(op, err)
			}
			if loan.Book != nil {
				loan.Book.Available = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (l *Ledger) GetBorrowing(ctx context.Context, id uint) (*entities.Borrowing, error) {
	loan, err := borrowings.NewRepository(l.db.WithContext(ctx)).GetByID(id)
	if errors.Is(err, borrowings.ErrBorrowingNotFound) {
		return nil, notFound("get borrowing", ErrNotBorrowed)
	}
	if err != nil {
		return nil, internal("get borrowing", err)
	}
	return loan, nil
}

// PendingLoans lists every open loan.
func (l *Ledger) PendingLoans(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error) {
	page, err := borrowings.NewRepository(l.db.WithContext(ctx)).ListPending(nil, q)
	if err != nil {
		return page, internal("list pending loans", err)
	}
	return page, nil
}

// LoanHistory lists every closed loan.
func (l *Ledger) LoanHistory(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error) {
	page, err := borrowings.NewRepository(l.db.WithContext(ctx)).ListHistory(nil, q)
	if err != nil {
		return page, internal("list loan history", err)
	}
	return page, nil
}

// BorrowerPendingLoans lists the caller's own open loans.
func (l *Ledger) BorrowerPendingLoans(ctx context.Context, caller Principal, q listing.Query) (listing.Page[entities.Borrowing], error) {
	const op = "list own pending loans"
	borrowerID, err := l.callerBorrowerID(ctx, op, caller)
	if err != nil {
		return listing.Page[entities.Borrowing]{}, err
	}
	page, err := borrowings.NewRepository(l.db.WithContext(ctx)).ListPending(&borrowerID, q)
	if err != nil {
		return page, internal(op, err)
	}
	return page, nil
}

// BorrowerLoanHistory lists the caller's own closed loans.
func (l *Ledger) BorrowerLoanHistory(ctx context.Context, caller Principal, q listing.Query) (listing.Page[entities.Borrowing], error) {
	const op = "list own loan history"
	borrowerID, err := l.callerBorrowerID(ctx, op, caller)
	if err != nil {
		return listing.Page[entities.Borrowing]{}, err
	}
	page, err := borrowings.NewRepository(l.db.WithContext(ctx)).ListHistory(&borrowerID, q)
	if err != nil {
		return page, internal(op, err)
	}
	return page, nil
}

// CheckAvailability reports every book whose flag disagrees with the ledger.
func (l *Ledger) CheckAvailability(ctx context.Context) ([]AvailabilityDrift, error) {
	drifted, err := books.NewRepository(l.db.WithContext(ctx)).FindAvailabilityDrift()
	if err != nil {
		return nil, internal("check availability", err)
	}
	return toDrift(drifted), nil
}

// RepairAvailability recomputes the flag of every drifted book from the
// ledger and returns what it changed.
func (l *Ledger) RepairAvailability(ctx context.Context) ([]AvailabilityDrift, error) {
	const op = "repair availability"
	var repaired []AvailabilityDrift
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := books.NewRepository(tx)
		drifted, err := repo.FindAvailabilityDrift()
		if err != nil {
			return internal(op, err)
		}
		for _, d := range toDrift(drifted) {
			available, err := repo.RecomputeAvailable(d.BookID)
			if errors.Is(err, books.ErrBookNotFound) {
				continue
			}
			if err != nil {
				return internal(op, err)
			}
			if available == d.Flagged {
				// A concurrent borrow or return already settled it
				continue
			}
			d.Expected = available
			repaired = append(repaired, d)
			log.Printf("[LEDGER] Repaired availability of book %d (%q): %t -> %t", d.BookID, d.Title, d.Flagged, d.Expected)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repaired, nil
}

func (l *Ledger) callerBorrowerID(ctx context.Context, op string, caller Principal) (uint, error) {
	if !caller.Authenticated() {
		return 0, unauthorized(op, ErrNotAuthenticated)
	}
	borrower, err := borrowers.NewRepository(l.db.WithContext(ctx)).GetByUserID(caller.UserID)
	if errors.Is(err, borrowers.ErrBorrowerNotFound) {
		return 0, notFound(op, ErrNoBorrowerRecord)
	}
	if err != nil {
		return 0, internal(op, err)
	}
	return borrower.ID, nil
}

func toDrift(drifted []entities.Book) []AvailabilityDrift {
	out := make([]AvailabilityDrift, len(drifted))
	for i, b := range drifted {
		out[i] = AvailabilityDrift{BookID: b.ID, Title: b.Title, Flagged: b.Available, Expected: !b.Available}
	}
	return out
}
