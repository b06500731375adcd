package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
)

// BorrowerLookup finds the borrower record linked to a user.
type BorrowerLookup interface {
	BorrowerForUser(ctx context.Context, userID uint) (*entities.Borrower, error)
}

// CapabilityLister lists the capability codenames a user holds.
type CapabilityLister interface {
	ListForUser(userID uint) ([]string, error)
}

// ProfileController handles the signed-in user's own account.
type ProfileController struct {
	authService  *auth.Service
	borrowers    BorrowerLookup
	capabilities CapabilityLister
	landing      auth.LandingFunc
}

func NewProfileController(authService *auth.Service, borrowers BorrowerLookup, capabilities CapabilityLister, landing auth.LandingFunc) *ProfileController {
	return &ProfileController{
		authService:  authService,
		borrowers:    borrowers,
		capabilities: capabilities,
		landing:      landing,
	}
}

type ProfileResponse struct {
	User         *entities.User     `json:"user"`
	Borrower     *entities.Borrower `json:"borrower"`
	Capabilities []string           `json:"capabilities"`
	HasToken     bool               `json:"has_token"`
	Landing      string             `json:"landing"`
}

// Profile handles GET /api/me
func (pc *ProfileController) Profile(c *gin.Context) {
	user := auth.GetUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return
	}

	resp := ProfileResponse{User: user, HasToken: user.TokenHash != "", Capabilities: []string{}}

	borrower, err := pc.borrowers.BorrowerForUser(c.Request.Context(), user.ID)
	switch {
	case err == nil:
		resp.Borrower = borrower
	case !errors.Is(err, library.ErrNotFound):
		respondInternalError(c, err, "profile borrower")
		return
	}

	codenames, err := pc.capabilities.ListForUser(user.ID)
	if err != nil {
		respondInternalError(c, err, "profile capabilities")
		return
	}
	if codenames != nil {
		resp.Capabilities = codenames
	}

	if pc.landing != nil {
		resp.Landing = pc.landing(user)
	}
	c.JSON(http.StatusOK, resp)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" form:"current_password"`
	NewPassword     string `json:"new_password" form:"new_password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// ChangePassword handles POST /api/me/password
func (pc *ProfileController) ChangePassword(c *gin.Context) {
	userID := auth.GetUserID(c)
	if userID == auth.AnonymousUserID {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		respondBadRequest(c, "New passwords do not match")
		return
	}

	err := pc.authService.ChangePassword(userID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		respondSuccess(c, "Password changed")
	case errors.Is(err, auth.ErrInvalidPassword):
		respondBadRequest(c, "Current password is incorrect")
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		respondBadRequest(c, err.Error())
	default:
		respondInternalError(c, err, "change password")
	}
}
