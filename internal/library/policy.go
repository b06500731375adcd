package library

import (
	"context"

	"github.com/mrlokans/librarian/internal/entities"
)

// Principal is the authenticated caller of an operation. The zero value is
// the anonymous principal.
type Principal struct {
	UserID   uint
	Username string
	Role     entities.UserRole
}

func PrincipalFromUser(user *entities.User) Principal {
	return Principal{UserID: user.ID, Username: user.Username, Role: user.Role}
}

func (p Principal) Authenticated() bool {
	return p.UserID != 0
}

func (p Principal) IsStaff() bool {
	return p.Authenticated() && p.Role.IsStaff()
}

type Operation string

const (
	OpManageCatalog   Operation = "manage_catalog"
	OpManageBorrowers Operation = "manage_borrowers"
	OpViewLoans       Operation = "view_loans"
	OpReconcile       Operation = "reconcile"
	OpViewAudit       Operation = "view_audit"
	OpViewBook        Operation = "view_book"
	OpViewBorrowing   Operation = "view_borrowing"
	OpBrowseCatalog   Operation = "browse_catalog"
	OpBrowseAvailable Operation = "browse_available"
	OpViewOwnLoans    Operation = "view_own_loans"
	OpBorrow          Operation = "borrow"
	OpReturn          Operation = "return"
)

type requirement struct {
	staff        bool
	capabilities []string
}

var requirements = map[Operation]requirement{
	OpManageCatalog:   {staff: true},
	OpManageBorrowers: {staff: true},
	OpViewLoans:       {staff: true},
	OpReconcile:       {staff: true},
	OpViewAudit:       {staff: true},
	OpViewBook:        {},
	OpViewBorrowing:   {},
	OpBrowseCatalog:   {},
	OpBrowseAvailable: {capabilities: entities.BorrowerCapabilities},
	OpViewOwnLoans:    {capabilities: entities.BorrowerCapabilities},
	OpBorrow:          {capabilities: []string{entities.CapabilityBorrow}},
	OpReturn:          {capabilities: []string{entities.CapabilityReturn}},
}

// CapabilityChecker is the read side of the capability store.
type CapabilityChecker interface {
	HasAll(userID uint, codenames ...string) (bool, error)
}

// Policy decides which principal may run which operation.
type Policy struct {
	capabilities CapabilityChecker
}

func NewPolicy(capabilities CapabilityChecker) *Policy {
	return &Policy{capabilities: capabilities}
}

// Authorize returns nil when the principal may perform op, an Unauthorized
// error when it may not, and a plain error when the capability store fails.
func (p *Policy) Authorize(ctx context.Context, principal Principal, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !principal.Authenticated() {
		return unauthorized(string(op), ErrNotAuthenticated)
	}

	req, ok := requirements[op]
	if !ok {
		return unauthorized(string(op), ErrPermissionDenied)
	}
	if req.staff && !principal.IsStaff() {
		return unauthorized(string(op), ErrPermissionDenied)
	}
	if len(req.capabilities) == 0 {
		return nil
	}

	held, err := p.capabilities.HasAll(principal.UserID, req.capabilities...)
	if err != nil {
		return internal(string(op), err)
	}
	if !held {
		return unauthorized(string(op), ErrMissingCapabilities)
	}
	return nil
}

// IsBorrower reports whether the principal holds every borrower capability.
// The login landing page uses it to pick the borrower view.
func (p *Policy) IsBorrower(principal Principal) (bool, error) {
	if !principal.Authenticated() {
		return false, nil
	}
	return p.capabilities.HasAll(principal.UserID, entities.BorrowerCapabilities...)
}
