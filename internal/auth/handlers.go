package auth

import (
	"errors"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

// setupMutex serializes setup requests to prevent race conditions.
var setupMutex sync.Mutex

// isLocalPath validates that a redirect path is local to prevent open redirect attacks.
// Returns true if the path is safe for redirect (local path only).
func isLocalPath(path string) bool {
	if path == "" {
		return false
	}

	// Must start with /
	if !strings.HasPrefix(path, "/") {
		return false
	}

	// Reject protocol-relative URLs (//evil.com)
	if strings.HasPrefix(path, "//") {
		return false
	}

	// Reject URLs with schemes
	if strings.Contains(path, "://") {
		return false
	}

	// Reject paths with backslashes (potential bypass attempts)
	if strings.Contains(path, "\\") {
		return false
	}

	return true
}

// sanitizeRedirectPath returns a safe redirect path, defaulting to "/" if invalid.
func sanitizeRedirectPath(path string) string {
	if isLocalPath(path) {
		return path
	}
	return "/"
}

// AuthLogger records login, logout and signup attempts.
type AuthLogger interface {
	LogAuth(userID uint, action string, ipAddr, userAgent string, success bool)
}

// LandingFunc picks where a freshly logged-in user is sent when the login
// form did not ask for a specific page.
type LandingFunc func(user *entities.User) string

// AuthController handles authentication-related HTTP endpoints.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	templates      *template.Template
	config         config.Auth
	rateLimiter    *RateLimiter
	auditLog       AuthLogger
	landing        LandingFunc
}

// NewAuthController creates a new authentication controller.
func NewAuthController(service *Service, sessionManager *SessionManager, templatesPath string, cfg config.Auth) (*AuthController, error) {
	// Parse auth templates
	pattern := filepath.Join(templatesPath, "auth", "*.html")
	tmpl, err := template.ParseGlob(pattern)
	if err != nil {
		// Templates might not exist yet, create controller without them
		tmpl = nil
	}

	// Initialize rate limiter with configuration
	rateLimiter := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     cfg.MaxLoginAttempts,
		WindowDuration:  cfg.RateLimitWindow,
		LockoutDuration: cfg.LockoutDuration,
	})

	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		templates:      tmpl,
		config:         cfg,
		rateLimiter:    rateLimiter,
	}, nil
}

// SetAuditLogger enables recording of authentication events.
func (ac *AuthController) SetAuditLogger(l AuthLogger) {
	ac.auditLog = l
}

// SetLanding sets the post-login destination chooser.
func (ac *AuthController) SetLanding(f LandingFunc) {
	ac.landing = f
}

func (ac *AuthController) logAuth(c *gin.Context, userID uint, action string, success bool) {
	if ac.auditLog != nil {
		ac.auditLog.LogAuth(userID, action, c.ClientIP(), c.Request.UserAgent(), success)
	}
}

// landingFor returns the requested redirect unless it is the bare root, in
// which case the role-specific landing page wins.
func (ac *AuthController) landingFor(user *entities.User, next string) string {
	if next != "/" && isLocalPath(next) {
		return next
	}
	if ac.landing != nil {
		if path := ac.landing(user); isLocalPath(path) {
			return path
		}
	}
	return "/"
}

// RegisterRoutes registers authentication routes on the router.
func (ac *AuthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/login", ac.LoginPage)
	router.POST("/login", ac.Login)
	router.POST("/logout", ac.Logout)
	router.GET("/logout", ac.Logout) // Support GET for simple logout links
	router.GET("/setup", ac.SetupPage)
	router.POST("/setup", ac.Setup)
	router.GET("/signup", ac.SignupPage)
	router.POST("/signup", ac.Signup)
}

// Stop cleans up resources (rate limiter background goroutine).
func (ac *AuthController) Stop() {
	if ac.rateLimiter != nil {
		ac.rateLimiter.Stop()
	}
}

// LoginPage renders the login form.
func (ac *AuthController) LoginPage(c *gin.Context) {
	// If already authenticated, redirect to home
	if ac.sessionManager != nil && ac.sessionManager.IsAuthenticated(c.Request) {
		c.Redirect(http.StatusFound, "/")
		return
	}

	// Sanitize redirect path to prevent open redirect attacks
	next := sanitizeRedirectPath(c.Query("next"))

	// Check if setup is needed
	hasUsers, _ := ac.service.HasUsers()
	if !hasUsers {
		c.Redirect(http.StatusFound, "/setup")
		return
	}

	ac.renderTemplate(c, "login.html", gin.H{
		"Title":     "Login",
		"Next":      next,
		"CSRFToken": GetCSRFToken(c),
		"Error":     c.Query("error"),
	})
}

// Login handles the login form submission.
func (ac *AuthController) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	// Sanitize redirect path to prevent open redirect attacks
	next := sanitizeRedirectPath(c.PostForm("next"))
	key := LoginKey(c.ClientIP(), username)

	// Check rate limiting before attempting authentication
	if ac.rateLimiter != nil {
		allowed, retryAfter := ac.rateLimiter.Allow(key)
		if !allowed {
			setRetryAfter(c, retryAfter)
			ac.renderTemplateStatus(c, http.StatusTooManyRequests, "login.html", gin.H{
				"Title":      "Login",
				"Next":       next,
				"Username":   username,
				"CSRFToken":  GetCSRFToken(c),
				"Error":      "Too many login attempts. Please try again later.",
				"RetryAfter": retryAfter.String(),
			})
			return
		}
	}

	// Authenticate user
	user, err := ac.service.Authenticate(username, password)
	if err != nil {
		// Record failed attempt for rate limiting
		if ac.rateLimiter != nil {
			ac.rateLimiter.RecordFailure(key)
		}
		ac.logAuth(c, AnonymousUserID, "login", false)

		errorMsg := "Invalid username or password"
		if errors.Is(err, ErrAccountLocked) {
			errorMsg = "Account is locked. Please try again later."
		}

		ac.renderTemplateStatus(c, http.StatusUnauthorized, "login.html", gin.H{
			"Title":     "Login",
			"Next":      next,
			"Username":  username,
			"CSRFToken": GetCSRFToken(c),
			"Error":     errorMsg,
		})
		return
	}

	// Record successful login (clears rate limit tracking)
	if ac.rateLimiter != nil {
		ac.rateLimiter.RecordSuccess(key)
	}
	ac.logAuth(c, user.ID, "login", true)

	// Create session
	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			ac.renderTemplate(c, "login.html", gin.H{
				"Title":     "Login",
				"Next":      next,
				"Username":  username,
				"CSRFToken": GetCSRFToken(c),
				"Error":     "Failed to create session",
			})
			return
		}
	}

	c.Redirect(http.StatusFound, ac.landingFor(user, next))
}

// Logout destroys the session and redirects to login.
func (ac *AuthController) Logout(c *gin.Context) {
	if userID := GetUserID(c); userID != AnonymousUserID {
		ac.logAuth(c, userID, "logout", true)
	}
	if ac.sessionManager != nil {
		_ = ac.sessionManager.DestroySession(c.Request)
	}
	c.Redirect(http.StatusFound, "/login")
}

// SetupPage renders the initial admin setup form.
func (ac *AuthController) SetupPage(c *gin.Context) {
	// Only show setup if no users exist
	hasUsers, err := ac.service.HasUsers()
	if err != nil {
		ac.renderTemplate(c, "setup.html", gin.H{
			"Title":     "Initial Setup",
			"CSRFToken": GetCSRFToken(c),
			"Error":     "Database error. Please try again.",
		})
		return
	}
	if hasUsers {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	// Check for error query parameter (e.g., from CSRF failure redirect)
	errorMsg := c.Query("error")

	ac.renderTemplate(c, "setup.html", gin.H{
		"Title":     "Initial Setup",
		"CSRFToken": GetCSRFToken(c),
		"Error":     errorMsg,
	})
}

// Setup handles the initial admin user creation.
// Uses a mutex to prevent race conditions where concurrent requests both pass HasUsers() check.
func (ac *AuthController) Setup(c *gin.Context) {
	// Serialize setup requests to prevent race conditions
	setupMutex.Lock()
	defer setupMutex.Unlock()

	// Only allow setup if no users exist (check while holding mutex)
	hasUsers, err := ac.service.HasUsers()
	if err != nil {
		ac.renderTemplate(c, "setup.html", gin.H{
			"Title":     "Initial Setup",
			"CSRFToken": GetCSRFToken(c),
			"Error":     "Database error. Please try again.",
		})
		return
	}
	if hasUsers {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	username := c.PostForm("username")
	email := c.PostForm("email")
	password := c.PostForm("password")
	confirmPassword := c.PostForm("confirm_password")

	// Validate passwords match
	if password != confirmPassword {
		ac.renderTemplate(c, "setup.html", gin.H{
			"Title":     "Initial Setup",
			"Username":  username,
			"Email":     email,
			"CSRFToken": GetCSRFToken(c),
			"Error":     "Passwords do not match",
		})
		return
	}

	// Create admin user
	user, err := ac.service.CreateUser(username, email, password, entities.UserRoleAdmin)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			// Another request won the race, redirect to login
			c.Redirect(http.StatusFound, "/login")
			return
		}
		errorMsg := createUserErrorMessage(err)

		ac.renderTemplate(c, "setup.html", gin.H{
			"Title":     "Initial Setup",
			"Username":  username,
			"Email":     email,
			"CSRFToken": GetCSRFToken(c),
			"Error":     errorMsg,
		})
		return
	}

	// Create session for new user
	if ac.sessionManager != nil {
		_ = ac.sessionManager.CreateSession(c.Request, user)
	}

	c.Redirect(http.StatusFound, "/")
}

// SignupPage renders the self-service registration form.
func (ac *AuthController) SignupPage(c *gin.Context) {
	if ac.sessionManager != nil && ac.sessionManager.IsAuthenticated(c.Request) {
		c.Redirect(http.StatusFound, "/")
		return
	}

	ac.renderTemplate(c, "signup.html", gin.H{
		"Title":     "Sign up",
		"CSRFToken": GetCSRFToken(c),
		"Error":     c.Query("error"),
	})
}

// Signup creates a member account and logs it in. The account can browse
// the catalog right away; it only gains borrowing rights once staff register
// it as a borrower.
func (ac *AuthController) Signup(c *gin.Context) {
	username := c.PostForm("username")
	email := c.PostForm("email")
	key := SignupKey(c.ClientIP())

	if ac.rateLimiter != nil {
		if allowed, retryAfter := ac.rateLimiter.Allow(key); !allowed {
			setRetryAfter(c, retryAfter)
			ac.renderTemplateStatus(c, http.StatusTooManyRequests, "signup.html", gin.H{
				"Title":     "Sign up",
				"Username":  username,
				"Email":     email,
				"CSRFToken": GetCSRFToken(c),
				"Error":     "Too many signup attempts. Please try again later.",
			})
			return
		}
	}

	user, err := ac.service.Signup(username, email, c.PostForm("password"), c.PostForm("confirm_password"))
	if err != nil {
		if ac.rateLimiter != nil {
			ac.rateLimiter.RecordFailure(key)
		}
		ac.logAuth(c, AnonymousUserID, "signup", false)
		ac.renderTemplateStatus(c, http.StatusBadRequest, "signup.html", gin.H{
			"Title":     "Sign up",
			"Username":  username,
			"Email":     email,
			"CSRFToken": GetCSRFToken(c),
			"Error":     createUserErrorMessage(err),
		})
		return
	}
	ac.logAuth(c, user.ID, "signup", true)

	if ac.sessionManager != nil {
		_ = ac.sessionManager.CreateSession(c.Request, user)
	}

	c.Redirect(http.StatusFound, ac.landingFor(user, ""))
}

// createUserErrorMessage turns a CreateUser validation error into text for
// the registration forms.
func createUserErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, ErrPasswordTooShort):
		return "Password must be at least 12 characters"
	case errors.Is(err, ErrPasswordTooLong):
		return "Password exceeds maximum length of 72 characters"
	case errors.Is(err, ErrUsernameRequired):
		return "Username is required"
	case errors.Is(err, ErrUsernameInvalid):
		return "Username must be 3-64 characters: letters, digits, dot, underscore or hyphen"
	case errors.Is(err, ErrEmailRequired):
		return "Email is required"
	case errors.Is(err, ErrEmailInvalid):
		return "Invalid email format"
	case errors.Is(err, ErrUserExists):
		return "A user with that username or email already exists"
	}
	return "Failed to create user"
}

// renderTemplate renders an auth template or falls back to JSON.
func (ac *AuthController) renderTemplate(c *gin.Context, name string, data gin.H) {
	ac.renderTemplateStatus(c, http.StatusOK, name, data)
}

func (ac *AuthController) renderTemplateStatus(c *gin.Context, status int, name string, data gin.H) {
	if ac.templates == nil || ac.templates.Lookup(name) == nil {
		c.JSON(status, data)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := ac.templates.ExecuteTemplate(c.Writer, name, data); err != nil {
		c.String(http.StatusInternalServerError, "Template error: %v", err)
	}
}

// APITokenController handles API token management endpoints.
type APITokenController struct {
	service *Service
}

// NewAPITokenController creates a new API token controller.
func NewAPITokenController(service *Service) *APITokenController {
	return &APITokenController{service: service}
}

// GenerateToken creates a new API token for the authenticated user.
func (tc *APITokenController) GenerateToken(c *gin.Context) {
	userID := GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	token, err := tc.service.GenerateToken(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Store this token securely - it will not be shown again",
	})
}

// RevokeToken revokes the API token for the authenticated user.
func (tc *APITokenController) RevokeToken(c *gin.Context) {
	userID := GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := tc.service.RevokeToken(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}
