package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
)

// LedgerStore defines the loan operations used by LoansController.
type LedgerStore interface {
	BorrowBook(ctx context.Context, caller library.Principal, bookID uint, username string) (*entities.Borrowing, error)
	ReturnBook(ctx context.Context, caller library.Principal, borrowingID uint) (*entities.Borrowing, error)
	GetBorrowing(ctx context.Context, id uint) (*entities.Borrowing, error)
	PendingLoans(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error)
	LoanHistory(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error)
	BorrowerPendingLoans(ctx context.Context, caller library.Principal, q listing.Query) (listing.Page[entities.Borrowing], error)
	BorrowerLoanHistory(ctx context.Context, caller library.Principal, q listing.Query) (listing.Page[entities.Borrowing], error)
}

// LoanAuditor records borrow and return attempts.
type LoanAuditor interface {
	LogBorrow(actor audit.Actor, bookID uint, username string, borrowing *entities.Borrowing, err error)
	LogReturn(actor audit.Actor, borrowingID uint, err error)
}

type LoansController struct {
	ledger   LedgerStore
	policy   Authorizer
	auditLog LoanAuditor
	pageSize int
}

func NewLoansController(ledger LedgerStore, policy Authorizer, auditLog LoanAuditor, pageSize int) *LoansController {
	return &LoansController{
		ledger:   ledger,
		policy:   policy,
		auditLog: auditLog,
		pageSize: pageSize,
	}
}

// BorrowRequest names the book and, for staff-assisted loans, the borrower's
// username. An empty username borrows for the caller.
type BorrowRequest struct {
	BookID   uint   `json:"book_id" form:"book_id"`
	Username string `json:"username" form:"username"`
}

type ReturnRequest struct {
	BorrowingID uint `json:"borrowing_id" form:"borrowing_id"`
}

// Borrow handles POST /api/borrow
func (lc *LoansController) Borrow(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBind(&req); err != nil || req.BookID == 0 {
		respondBadRequest(c, "book_id is required")
		return
	}

	loan, err := lc.ledger.BorrowBook(c.Request.Context(), principal(c), req.BookID, req.Username)
	if lc.auditLog != nil {
		lc.auditLog.LogBorrow(actor(c), req.BookID, req.Username, loan, err)
	}
	if err != nil {
		respondLibraryError(c, err, "borrow book")
		return
	}
	respondCreated(c, gin.H{
		"borrowing_id": loan.ID,
		"borrowing":    loan,
	})
}

// Return handles POST /api/return
func (lc *LoansController) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBind(&req); err != nil || req.BorrowingID == 0 {
		respondBadRequest(c, "borrowing_id is required")
		return
	}

	loan, err := lc.ledger.ReturnBook(c.Request.Context(), principal(c), req.BorrowingID)
	if lc.auditLog != nil {
		lc.auditLog.LogReturn(actor(c), req.BorrowingID, err)
	}
	if err != nil {
		respondLibraryError(c, err, "return book")
		return
	}
	c.JSON(http.StatusOK, loan)
}

// GetBorrowing handles GET /api/loans/:id
func (lc *LoansController) GetBorrowing(c *gin.Context) {
	if !authorize(c, lc.policy, library.OpViewBorrowing) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	loan, err := lc.ledger.GetBorrowing(c.Request.Context(), id)
	if err != nil {
		respondLibraryError(c, err, "get borrowing")
		return
	}
	c.JSON(http.StatusOK, loan)
}

// PendingLoans handles GET /api/loans/pending
func (lc *LoansController) PendingLoans(c *gin.Context) {
	if !authorize(c, lc.policy, library.OpViewLoans) {
		return
	}
	lc.respondPage(c, "list pending loans", func(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error) {
		return lc.ledger.PendingLoans(ctx, q)
	})
}

// LoanHistory handles GET /api/loans/history
func (lc *LoansController) LoanHistory(c *gin.Context) {
	if !authorize(c, lc.policy, library.OpViewLoans) {
		return
	}
	lc.respondPage(c, "list loan history", func(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error) {
		return lc.ledger.LoanHistory(ctx, q)
	})
}

// MyPendingLoans handles GET /api/me/loans/pending
func (lc *LoansController) MyPendingLoans(c *gin.Context) {
	if !authorize(c, lc.policy, library.OpViewOwnLoans) {
		return
	}
	caller := principal(c)
	lc.respondPage(c, "list own pending loans", func(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error) {
		return lc.ledger.BorrowerPendingLoans(ctx, caller, q)
	})
}

// MyLoanHistory handles GET /api/me/loans/history
func (lc *LoansController) MyLoanHistory(c *gin.Context) {
	if !authorize(c, lc.policy, library.OpViewOwnLoans) {
		return
	}
	caller := principal(c)
	lc.respondPage(c, "list own loan history", func(ctx context.Context, q listing.Query) (listing.Page[entities.Borrowing], error) {
		return lc.ledger.BorrowerLoanHistory(ctx, caller, q)
	})
}

func (lc *LoansController) respondPage(c *gin.Context, what string, list func(context.Context, listing.Query) (listing.Page[entities.Borrowing], error)) {
	page, err := list(c.Request.Context(), parseListQuery(c, lc.pageSize))
	if err != nil {
		respondLibraryError(c, err, what)
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(page))
}
