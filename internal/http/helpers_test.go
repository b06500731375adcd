package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/listing"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/library"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseIDParam_Valid(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "123"}}

	id, ok := parseIDParam(c, "id")

	assert.True(t, ok)
	assert.Equal(t, uint(123), id)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseIDParam_Invalid(t *testing.T) {
	for _, value := range []string{"abc", "-1", "0", ""} {
		t.Run(value, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Params = gin.Params{{Key: "id", Value: value}}

			id, ok := parseIDParam(c, "id")

			assert.False(t, ok)
			assert.Equal(t, uint(0), id)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "invalid id")
		})
	}
}

func TestParseListQuery(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?q=dune&order_by=title&dir=desc&page=3&page_size=500", nil)

	q := parseListQuery(c, 8)

	assert.Equal(t, listing.Query{Search: "dune", OrderBy: "title", Dir: listing.Desc, Page: 3, PageSize: 8}, q)
}

func TestParseListQuery_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=nope", nil)

	q := parseListQuery(c, 5)

	assert.Equal(t, 0, q.Page)
	assert.Equal(t, 5, q.PageSize)
	assert.Empty(t, q.Search)
}

func TestRespondLibraryError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", &library.Error{Kind: library.KindNotFound, Op: "get book", Err: library.ErrBookNotFound}, http.StatusNotFound, "not_found"},
		{"conflict", &library.Error{Kind: library.KindConflict, Op: "borrow", Err: library.ErrBookNotAvailable}, http.StatusConflict, "conflict"},
		{"unauthorized", &library.Error{Kind: library.KindUnauthorized, Op: "borrow", Err: library.ErrMissingCapabilities}, http.StatusForbidden, "unauthorized"},
		{"invalid", &library.Error{Kind: library.KindInvalid, Op: "create borrower", Err: library.ErrStaffBorrower}, http.StatusBadRequest, "invalid"},
		{"internal", errors.New("disk I/O error"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondLibraryError(c, tt.err, "test")

			assert.Equal(t, tt.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Error)
			} else {
				assert.Equal(t, library.Reason(tt.err), body.Error)
			}
		})
	}
}

func TestNewPaginatedResponse(t *testing.T) {
	page := listing.Page[entities.Book]{
		Items:    []entities.Book{{ID: 6}, {ID: 7}},
		Total:    12,
		Page:     2,
		PageSize: 5,
	}

	resp := newPaginatedResponse(page)

	assert.Equal(t, int64(12), resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 5, resp.Limit)
	assert.Equal(t, 5, resp.Offset)
	assert.Equal(t, 3, resp.TotalPages)
	assert.True(t, resp.HasMore)
}

func TestPrincipalAndActor(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("User-Agent", "curl/8.0")

	assert.False(t, principal(c).Authenticated())

	c.Set(auth.ContextKeyUser, &entities.User{ID: 4, Username: "alice", Role: entities.UserRoleMember})
	c.Set(auth.ContextKeyUserID, uint(4))
	c.Set(contextKeyRequestID, "req-1")

	p := principal(c)
	assert.Equal(t, library.Principal{UserID: 4, Username: "alice", Role: entities.UserRoleMember}, p)

	a := actor(c)
	assert.Equal(t, uint(4), a.UserID)
	assert.Equal(t, "req-1", a.RequestID)
	assert.Equal(t, "curl/8.0", a.UserAgent)
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generates an ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("keeps a valid incoming ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "0b3c6a1e-5d1f-4f57-9c1e-0e8d7f1b2a33")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "0b3c6a1e-5d1f-4f57-9c1e-0e8d7f1b2a33", w.Body.String())
	})

	t.Run("replaces a malformed incoming ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.NotEqual(t, "<script>", w.Body.String())
		assert.Len(t, w.Body.String(), 36)
	})
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://app.example.com"}))
	router.GET("/api/catalog", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/catalog", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
