package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
)

// Authorizer decides whether the caller may run an operation.
type Authorizer interface {
	Authorize(ctx context.Context, principal library.Principal, op library.Operation) error
}

// authorize responds with the policy failure and returns false when the
// caller may not run op.
func authorize(c *gin.Context, policy Authorizer, op library.Operation) bool {
	if err := policy.Authorize(c.Request.Context(), principal(c), op); err != nil {
		respondLibraryError(c, err, string(op))
		return false
	}
	return true
}

// CatalogStore defines the catalog operations used by BooksController.
type CatalogStore interface {
	CreateBook(ctx context.Context, in library.BookInput) (*entities.Book, error)
	UpdateBook(ctx context.Context, id uint, in library.BookInput) (*entities.Book, error)
	GetBook(ctx context.Context, id uint) (*entities.Book, error)
	ListBooks(ctx context.Context, q listing.Query) (listing.Page[entities.Book], error)
	ListAvailable(ctx context.Context, q listing.Query) (listing.Page[entities.Book], error)
	DeleteBook(ctx context.Context, id uint) error
}

// CatalogAuditor records catalog writes.
type CatalogAuditor interface {
	LogCatalog(actor audit.Actor, action string, book *entities.Book, err error)
	LogDelete(actor audit.Actor, entityType string, entityID uint, err error)
}

type BooksController struct {
	catalog       CatalogStore
	policy        Authorizer
	auditLog      CatalogAuditor
	booksPageSize int
	pageSize      int
}

func NewBooksController(catalog CatalogStore, policy Authorizer, auditLog CatalogAuditor, booksPageSize, pageSize int) *BooksController {
	return &BooksController{
		catalog:       catalog,
		policy:        policy,
		auditLog:      auditLog,
		booksPageSize: booksPageSize,
		pageSize:      pageSize,
	}
}

// BookRequest is the JSON body of book create and update. PublicationDate
// is a calendar date (2006-01-02) or an RFC 3339 timestamp.
type BookRequest struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	PublicationDate string `json:"publication_date"`
	Available       *bool  `json:"available,omitempty"`
}

func (r BookRequest) input() (library.BookInput, error) {
	in := library.BookInput{
		Title:     r.Title,
		Author:    r.Author,
		ISBN:      r.ISBN,
		Available: r.Available,
	}
	if r.PublicationDate == "" {
		return in, nil
	}
	date, err := time.Parse(time.DateOnly, r.PublicationDate)
	if err != nil {
		if date, err = time.Parse(time.RFC3339, r.PublicationDate); err != nil {
			return in, err
		}
	}
	in.PublicationDate = date
	return in, nil
}

func (bc *BooksController) logCatalog(c *gin.Context, action string, book *entities.Book, err error) {
	if bc.auditLog != nil {
		bc.auditLog.LogCatalog(actor(c), action, book, err)
	}
}

// ListBooks handles GET /api/books
func (bc *BooksController) ListBooks(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageCatalog) {
		return
	}
	page, err := bc.catalog.ListBooks(c.Request.Context(), parseListQuery(c, bc.booksPageSize))
	if err != nil {
		respondLibraryError(c, err, "list books")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(page))
}

// CreateBook handles POST /api/books
func (bc *BooksController) CreateBook(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageCatalog) {
		return
	}
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		respondBadRequest(c, "publication_date must be YYYY-MM-DD")
		return
	}

	book, err := bc.catalog.CreateBook(c.Request.Context(), in)
	if err != nil {
		bc.logCatalog(c, "book_create", &entities.Book{Title: in.Title, ISBN: in.ISBN}, err)
		respondLibraryError(c, err, "create book")
		return
	}
	bc.logCatalog(c, "book_create", book, nil)
	respondCreated(c, book)
}

// GetBook handles GET /api/books/:id
func (bc *BooksController) GetBook(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpViewBook) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.catalog.GetBook(c.Request.Context(), id)
	if err != nil {
		respondLibraryError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// UpdateBook handles PUT /api/books/:id. Setting "available" here bypasses
// the loan ledger; the reconcile job repairs any drift it causes.
func (bc *BooksController) UpdateBook(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageCatalog) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		respondBadRequest(c, "publication_date must be YYYY-MM-DD")
		return
	}

	book, err := bc.catalog.UpdateBook(c.Request.Context(), id, in)
	if err != nil {
		bc.logCatalog(c, "book_update", &entities.Book{ID: id, Title: in.Title, ISBN: in.ISBN}, err)
		respondLibraryError(c, err, "update book")
		return
	}
	bc.logCatalog(c, "book_update", book, nil)
	c.JSON(http.StatusOK, book)
}

// DeleteBook handles DELETE /api/books/:id
func (bc *BooksController) DeleteBook(c *gin.Context) {
	if !authorize(c, bc.policy, library.OpManageCatalog) {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := bc.catalog.DeleteBook(c.Request.Context(), id)
	if bc.auditLog != nil {
		bc.auditLog.LogDelete(actor(c), "book", id, err)
	}
	if err != nil {
		respondLibraryError(c, err, "delete book")
		return
	}
	respondSuccess(c, "Book deleted")
}

// ListAvailable handles GET /api/available, the borrower's view of books
// that can be borrowed right now.
func (bc *BooksController) ListAvailable(c *gin.Context) {
	bc.listAvailable(c, library.OpBrowseAvailable)
}

// ListCatalog handles GET /api/catalog. It shows the same books as
// ListAvailable to any signed-in user.
func (bc *BooksController) ListCatalog(c *gin.Context) {
	bc.listAvailable(c, library.OpBrowseCatalog)
}

func (bc *BooksController) listAvailable(c *gin.Context, op library.Operation) {
	if !authorize(c, bc.policy, op) {
		return
	}
	page, err := bc.catalog.ListAvailable(c.Request.Context(), parseListQuery(c, bc.pageSize))
	if err != nil {
		respondLibraryError(c, err, "list available books")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(page))
}
