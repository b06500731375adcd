package library

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Kind sentinels. errors.Is(err, ErrConflict) matches any *Error of that kind.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
)

// Reasons. An *Error wraps exactly one of these (or a validation message).
var (
	ErrBookNotFound        = errors.New("book not found")
	ErrBorrowerNotFound    = errors.New("borrower not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrNoBorrowerRecord    = errors.New("user is not a registered borrower")
	ErrNotBorrowed         = errors.New("book is not borrowed")
	ErrBookNotAvailable    = errors.New("book is not available")
	ErrAlreadyReturned     = errors.New("book has already been returned")
	ErrPendingReturns      = errors.New("has pending returns")
	ErrDuplicateISBN       = errors.New("a book with this ISBN already exists")
	ErrAlreadyBorrower     = errors.New("user is already a registered borrower")
	ErrStaffBorrower       = errors.New("librarians are not allowed to be borrowers")
	ErrNotAuthenticated    = errors.New("authentication required")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrStaffOnly           = errors.New("only staff may borrow on behalf of another user")
	ErrNotYourLoan         = errors.New("loan belongs to another borrower")
	ErrMissingCapabilities = errors.New("missing required capability")
)

// Error is the typed failure returned by every library operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrInvalid:
		return e.Kind == KindInvalid
	}
	return false
}

// KindOf returns the kind of a library error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var libErr *Error
	if errors.As(err, &libErr) {
		return libErr.Kind
	}
	return KindInternal
}

// Reason returns the user-facing reason of a library error.
func Reason(err error) string {
	var libErr *Error
	if errors.As(err, &libErr) {
		return libErr.Err.Error()
	}
	return err.Error()
}

func notFound(op string, reason error) error {
	return &Error{Kind: KindNotFound, Op: op, Err: reason}
}

func conflict(op string, reason error) error {
	return &Error{Kind: KindConflict, Op: op, Err: reason}
}

func unauthorized(op string, reason error) error {
	return &Error{Kind: KindUnauthorized, Op: op, Err: reason}
}

func invalid(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalid, Op: op, Err: fmt.Errorf(format, args...)}
}

func invalidReason(op string, reason error) error {
	return &Error{Kind: KindInvalid, Op: op, Err: reason}
}

// internal wraps an unexpected store failure so the caller sees the operation.
func internal(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
