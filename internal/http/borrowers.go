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

// RegistryStore defines the borrower registry operations used by BorrowersController.
type RegistryStore interface {
	CreateBorrower(ctx context.Context, in library.BorrowerInput) (*entities.Borrower, error)
	UpdateBorrower(ctx context.Context, id uint, in library.BorrowerInput) (*entities.Borrower, error)
	DeleteBorrower(ctx context.Context, id uint) error
	GetBorrower(ctx context.Context, id uint) (*entities.Borrower, error)
	ListBorrowers(ctx context.Context, q listing.Query) (listing.Page[entities.Borrower], error)
}

// RegistryAuditor records borrower registry writes.
type RegistryAuditor interface {
	LogRegistry(actor audit.Actor, action string, borrower *entities.Borrower, err error)
	LogDelete(actor audit.Actor, entityType string, entityID uint, err error)
}

type BorrowersController struct {
	registry RegistryStore
	policy   Authorizer
	auditLog RegistryAuditor
	pageSize int
}

func NewBorrowersController(registry RegistryStore, policy Authorizer, auditLog RegistryAuditor, pageSize int) *BorrowersController {
	return &BorrowersController{
		registry: registry,
		policy:   policy,
		auditLog: auditLog,
		pageSize: pageSize,
	}
}

type BorrowerRequest struct {
	UserID      uint   `json:"user_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

func (r BorrowerRequest) input() library.BorrowerInput {
	return library.BorrowerInput{UserID: r.UserID, Name: r.Name, PhoneNumber: r.PhoneNumber}
}

func (bc *BorrowersController) logRegistry(c *gin.Context, action string, borrower *entities.Borrower, err error) {
	if bc.auditLog != nil {
		bc.auditLog.LogRegistry(actor(c), action, borrower, err)
	}
}

// ListBorrowers handles GET /api/borrowers
func (bc *BorrowersController) ListBorrowers(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageBorrowers) {
		return
	}
	page, err := bc.registry.ListBorrowers(c.Request.Context(), parseListQuery(c, bc.pageSize))
	if err != nil {
		respondLibraryError(c, err, "list borrowers")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(page))
}

// CreateBorrower handles POST /api/borrowers. The linked user gains the
// borrower capabilities.
func (bc *BorrowersController) CreateBorrower(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageBorrowers) {
		return
	}
	var req BorrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	in := req.input()
	borrower, err := bc.registry.CreateBorrower(c.Request.Context(), in)
	if err != nil {
		bc.logRegistry(c, "borrower_create", &entities.Borrower{UserID: in.UserID, Name: in.Name}, err)
		respondLibraryError(c, err, "create borrower")
		return
	}
	bc.logRegistry(c, "borrower_create", borrower, nil)
	respondCreated(c, borrower)
}

// GetBorrower handles GET /api/borrowers/:id
func (bc *BorrowersController) GetBorrower(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageBorrowers) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	borrower, err := bc.registry.GetBorrower(c.Request.Context(), id)
	if err != nil {
		respondLibraryError(c, err, "get borrower")
		return
	}
	c.JSON(http.StatusOK, borrower)
}

// UpdateBorrower handles PUT /api/borrowers/:id. Pointing the record at a
// different user moves the borrower capabilities along with it.
func (bc *BorrowersController) UpdateBorrower(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageBorrowers) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req BorrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	in := req.input()
	borrower, err := bc.registry.UpdateBorrower(c.Request.Context(), id, in)
	if err != nil {
		bc.logRegistry(c, "borrower_update", &entities.Borrower{ID: id, UserID: in.UserID, Name: in.Name}, err)
		respondLibraryError(c, err, "update borrower")
		return
	}
	bc.logRegistry(c, "borrower_update", borrower, nil)
	c.JSON(http.StatusOK, borrower)
}

// DeleteBorrower handles DELETE /api/borrowers/:id
func (bc *BorrowersController) DeleteBorrower(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageBorrowers) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := bc.registry.DeleteBorrower(c.Request.Context(), id)
	if bc.auditLog != nil {
		bc.auditLog.LogDelete(actor(c), "borrower", id, err)
	}
	if err != nil {
		respondLibraryError(c, err, "delete borrower")
		return
	}
	respondSuccess(c, "Borrower deleted")
}
