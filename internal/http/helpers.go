package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/library"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error kind
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

func newPaginatedResponse[T any](page listing.Page[T]) PaginatedResponse {
	return PaginatedResponse{
		Data:       page.Items,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
		HasMore:    page.HasMore(),
		TotalPages: page.TotalPages(),
	}
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondLibraryError maps a library failure onto its HTTP status. Anything
// that is not a typed library error is treated as internal.
func respondLibraryError(c *gin.Context, err error, context string) {
	kind := library.KindOf(err)
	var status int
	switch kind {
	case library.KindNotFound:
		status = http.StatusNotFound
	case library.KindConflict:
		status = http.StatusConflict
	case library.KindUnauthorized:
		status = http.StatusForbidden
	case library.KindInvalid:
		status = http.StatusBadRequest
	default:
		respondInternalError(c, err, context)
		return
	}
	c.JSON(status, ErrorResponse{Error: library.Reason(err), Code: kind.String()})
}

// --- Success Response Helpers ---

// respondSuccess sends a 200 OK response with a message.
func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

// respondCreated sends a 201 Created response with data.
func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// respondAccepted sends a 202 Accepted response (for async operations).
func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Message: message, Data: data})
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Param(paramName)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseListQuery reads q, order_by, dir and page. The page size is fixed
// per view; clients cannot change it.
func parseListQuery(c *gin.Context, pageSize int) listing.Query {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	return listing.Query{
		Search:   c.Query("q"),
		OrderBy:  c.Query("order_by"),
		Dir:      listing.Direction(c.Query("dir")),
		Page:     page,
		PageSize: pageSize,
	}
}

// --- Caller ---

// principal returns the library identity of the authenticated caller, or
// the anonymous principal.
func principal(c *gin.Context) library.Principal {
	if user := auth.GetUser(c); user != nil {
		return library.PrincipalFromUser(user)
	}
	return library.Principal{}
}

// actor describes the caller for the audit log.
func actor(c *gin.Context) audit.Actor {
	return audit.Actor{
		UserID:    auth.GetUserID(c),
		RequestID: GetRequestID(c),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
