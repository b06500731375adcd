package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCSRFConfig = CSRFConfig{Secret: []byte("test-secret-key-32-bytes-long!!!")}

func csrfRouter(cfg CSRFConfig, svc *Service) *gin.Engine {
	router := gin.New()
	router.Use(CSRFMiddleware(cfg, svc))
	router.GET("/form", func(c *gin.Context) {
		c.String(http.StatusOK, GetCSRFToken(c))
	})
	router.POST("/api/borrow", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return router
}

func TestCSRFMiddleware_SkipsValidBearer(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})
	user, err := svc.CreateUser("alice", "alice@example.com", "password12345", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	token, err := svc.GenerateToken(user.ID)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	router := csrfRouter(testCSRFConfig, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/borrow", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected 201 for valid bearer request, got %d", rr.Code)
	}
}

func TestCSRFMiddleware_InvalidBearerIsChecked(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})
	router := csrfRouter(testCSRFConfig, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/borrow", nil)
	req.Header.Set("Authorization", "Bearer forged-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for forged bearer without CSRF token, got %d", rr.Code)
	}
}

func TestCSRFMiddleware_AllowsGETAndIssuesToken(t *testing.T) {
	router := csrfRouter(testCSRFConfig, nil)

	req := httptest.NewRequest(http.MethodGet, "/form", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 for GET request, got %d", rr.Code)
	}
	if rr.Body.String() == "" {
		t.Error("Expected CSRF token to be set in context")
	}
}

func TestCSRFMiddleware_BlocksPOSTWithoutToken(t *testing.T) {
	router := csrfRouter(testCSRFConfig, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/borrow", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for POST without CSRF token, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON error for /api path, got Content-Type %q", ct)
	}
}

func TestCSRFMiddleware_AcceptsTokenRoundTrip(t *testing.T) {
	router := csrfRouter(testCSRFConfig, nil)

	get := httptest.NewRecorder()
	router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/form", nil))
	token := get.Body.String()

	req := httptest.NewRequest(http.MethodPost, "/api/borrow", nil)
	req.Header.Set(CSRFTokenHeader, token)
	for _, cookie := range get.Result().Cookies() {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected 201 with a valid CSRF token, got %d", rr.Code)
	}
}

func TestGetCSRFToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if token := GetCSRFToken(c); token != "" {
		t.Errorf("Expected empty token, got %s", token)
	}

	c.Set(contextKeyCSRFToken, "test-token-123")
	if token := GetCSRFToken(c); token != "test-token-123" {
		t.Errorf("Expected 'test-token-123', got '%s'", token)
	}
}

func TestHasValidBearer(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, config.Auth{BcryptCost: 4})
	user, err := svc.CreateUser("alice", "alice@example.com", "password12345", entities.UserRoleMember)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	token, err := svc.GenerateToken(user.ID)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
		svc    *Service
		want   bool
	}{
		{"valid token", "Bearer " + token, svc, true},
		{"case insensitive scheme", "bEaReR " + token, svc, true},
		{"unknown token", "Bearer nope", svc, false},
		{"basic auth", "Basic dXNlcjpwYXNz", svc, false},
		{"no header", "", svc, false},
		{"no service", "Bearer " + token, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			if got := hasValidBearer(c, tt.svc); got != tt.want {
				t.Errorf("hasValidBearer() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrustedHosts(t *testing.T) {
	got := trustedHosts([]string{"https://app.example.com", "http://localhost:3000", "::bad::", ""})
	want := []string{"app.example.com", "localhost:3000"}
	if len(got) != len(want) {
		t.Fatalf("trustedHosts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trustedHosts()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCSRFErrorHandler(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		req.Header.Set("Accept", "application/json")

		csrfErrorHandler(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", ct)
		}
	})

	t.Run("form with referer", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		req.Header.Set("Referer", "http://example.com/signup?x=1")

		csrfErrorHandler(rr, req)

		if rr.Code != http.StatusSeeOther {
			t.Errorf("Expected 303, got %d", rr.Code)
		}
		loc := rr.Header().Get("Location")
		if loc == "" || loc[0] != '/' {
			t.Errorf("Expected a local redirect, got %q", loc)
		}
	})

	t.Run("form without referer", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)

		csrfErrorHandler(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rr.Code)
		}
	})
}
