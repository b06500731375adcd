package library

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/books"
	"github.com/mrlokans/librarian/internal/database/borrowings"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
)

const (
	maxTitleLength  = 255
	maxAuthorLength = 255
)

var isbnPattern = regexp.MustCompile(`^(\d{9}[\dX]|\d{13})$`)

// BookInput carries the editable fields of a book. A nil Available keeps
// the current flag on update and means "available" on create.
type BookInput struct {
	Title           string
	Author          string
	ISBN            string
	PublicationDate time.Time
	Available       *bool
}

// NormalizeISBN strips separators and upper-cases a trailing check character.
func NormalizeISBN(raw string) string {
	replacer := strings.NewReplacer("-", "", " ", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(raw)))
}

func (in *BookInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = NormalizeISBN(in.ISBN)
}

func (in BookInput) validate(op string) error {
	switch {
	case in.Title == "":
		return invalid(op, "title is required")
	case len(in.Title) > maxTitleLength:
		return invalid(op, "title must be at most %d characters", maxTitleLength)
	case in.Author == "":
		return invalid(op, "author is required")
	case len(in.Author) > maxAuthorLength:
		return invalid(op, "author must be at most %d characters", maxAuthorLength)
	case !isbnPattern.MatchString(in.ISBN):
		return invalid(op, "isbn must be 10 or 13 digits")
	case in.PublicationDate.IsZero():
		return invalid(op, "publication date is required")
	}
	return nil
}

// Catalog manages books. Availability is owned by the Ledger; UpdateBook
// still accepts it as a staff override, and RepairAvailability undoes any
// drift that override introduces.
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) CreateBook(ctx context.Context, in BookInput) (*entities.Book, error) {
	const op = "create book"
	in.normalize()
	if err := in.validate(op); err != nil {
		return nil, err
	}

	book := &entities.Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		PublicationDate: in.PublicationDate,
		Available:       true,
	}
	if in.Available != nil {
		book.Available = *in.Available
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := books.NewRepository(tx)
		if err := ensureUniqueISBN(op, repo, in.ISBN, 0); err != nil {
			return err
		}
		if err := repo.Create(book); err != nil {
			return translateWrite(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// UpdateBook replaces the editable fields of a book. Setting Available here
// bypasses the ledger.
func (c *Catalog) UpdateBook(ctx context.Context, id uint, in BookInput) (*entities.Book, error) {
	const op = "update book"
	in.normalize()
	if err := in.validate(op); err != nil {
		return nil, err
	}

	var book *entities.Book
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := books.NewRepository(tx)

		var err error
		book, err = repo.LockBookByID(id)
		if errors.Is(err, books.ErrBookNotFound) {
			return notFound(op, ErrBookNotFound)
		}
		if err != nil {
			return internal(op, err)
		}

		if in.ISBN != book.ISBN {
			if err := ensureUniqueISBN(op, repo, in.ISBN, book.ID); err != nil {
				return err
			}
		}

		book.Title = in.Title
		book.Author = in.Author
		book.ISBN = in.ISBN
		book.PublicationDate = in.PublicationDate
		if in.Available != nil && *in.Available != book.Available {
			log.Printf("[CATALOG] Availability of book %d set to %t by direct edit", book.ID, *in.Available)
			book.Available = *in.Available
		}

		if err := repo.Update(book); err != nil {
			return translateWrite(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (c *Catalog) GetBook(ctx context.Context, id uint) (*entities.Book, error) {
	book, err := books.NewRepository(c.db.WithContext(ctx)).GetBookByID(id)
	if errors.Is(err, books.ErrBookNotFound) {
		return nil, notFound("get book", ErrBookNotFound)
	}
	if err != nil {
		return nil, internal("get book", err)
	}
	return book, nil
}

func (c *Catalog) ListBooks(ctx context.Context, q listing.Query) (listing.Page[entities.Book], error) {
	page, err := books.NewRepository(c.db.WithContext(ctx)).List(q)
	if err != nil {
		return page, internal("list books", err)
	}
	return page, nil
}

func (c *Catalog) ListAvailable(ctx context.Context, q listing.Query) (listing.Page[entities.Book], error) {
	page, err := books.NewRepository(c.db.WithContext(ctx)).ListAvailable(q)
	if err != nil {
		return page, internal("list available books", err)
	}
	return page, nil
}

// DeleteBook removes a book that has no open loan. Closed loans of the book
// are kept with their book reference cleared.
func (c *Catalog) DeleteBook(ctx context.Context, id uint) error {
	const op = "delete book"
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := books.NewRepository(tx)
		loans := borrowings.NewRepository(tx)

		if _, err := repo.LockBookByID(id); err != nil {
			if errors.Is(err, books.ErrBookNotFound) {
				return notFound(op, ErrBookNotFound)
			}
			return internal(op, err)
		}

		open, err := loans.CountOpenForBook(id)
		if err != nil {
			return internal(op, err)
		}
		if open > 0 {
			return conflict(op, ErrPendingReturns)
		}

		if err := loans.DetachBook(id); err != nil {
			return internal(op, err)
		}
		if err := repo.Delete(id); err != nil {
			return internal(op, err)
		}
		return nil
	})
}

func ensureUniqueISBN(op string, repo *books.Repository, isbn string, selfID uint) error {
	existing, err := repo.FindByISBN(isbn)
	if errors.Is(err, books.ErrBookNotFound) {
		return nil
	}
	if err != nil {
		return internal(op, err)
	}
	if existing.ID != selfID {
		return conflict(op, ErrDuplicateISBN)
	}
	return nil
}

func translateWrite(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return conflict(op, ErrDuplicateISBN)
	}
	return internal(op, err)
}
