package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFTokenHeader is the header name for the CSRF token in AJAX requests.
const CSRFTokenHeader = "X-CSRF-Token"

const contextKeyCSRFToken = "csrf_token"

// CSRFConfig configures CSRFMiddleware.
type CSRFConfig struct {
	Secret []byte
	// Secure marks the cookie Secure and makes the origin check assume HTTPS.
	// When false, requests are treated as plaintext HTTP.
	Secure bool
	// TrustedOrigins are full origins (scheme://host[:port]) allowed to post
	// cross-origin, normally the CORS allow list.
	TrustedOrigins []string
}

// CSRFMiddleware protects cookie-authenticated state changes. Requests that
// carry a valid bearer token skip the check: they cannot be forged by a
// browser. Safe methods pass through but still get a token issued.
func CSRFMiddleware(cfg CSRFConfig, authService *Service) gin.HandlerFunc {
	opts := []csrf.Option{
		csrf.Secure(cfg.Secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.Path("/"),
		csrf.RequestHeader(CSRFTokenHeader),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	}
	if hosts := trustedHosts(cfg.TrustedOrigins); len(hosts) > 0 {
		opts = append(opts, csrf.TrustedOrigins(hosts))
	}
	protect := csrf.Protect(cfg.Secret, opts...)

	return func(c *gin.Context) {
		if hasValidBearer(c, authService) {
			c.Next()
			return
		}

		req := c.Request
		if !cfg.Secure {
			req = csrf.PlaintextHTTPRequest(req)
		}

		handler := protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Set(contextKeyCSRFToken, csrf.Token(r))
			c.Request = r
			c.Next()
		}))

		handler.ServeHTTP(c.Writer, req)
	}
}

// csrfErrorHandler answers CSRF failures. JSON clients get a JSON body; form
// posts are sent back to the page they came from with an error message.
func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"CSRF token invalid or missing"}`))
		return
	}

	if ref, err := url.Parse(r.Referer()); err == nil && isLocalPath(ref.Path) {
		q := ref.Query()
		q.Set("error", "Session expired. Please try again.")
		http.Redirect(w, r, ref.Path+"?"+q.Encode(), http.StatusSeeOther)
		return
	}

	http.Error(w, "Forbidden - CSRF token invalid or missing", http.StatusForbidden)
}

// hasValidBearer reports whether the request authenticates with a bearer
// token the service accepts.
func hasValidBearer(c *gin.Context, authService *Service) bool {
	if authService == nil {
		return false
	}
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return false
	}
	_, err := authService.ValidateToken(strings.TrimSpace(token))
	return err == nil
}

// trustedHosts turns origins into the host[:port] form gorilla/csrf expects.
func trustedHosts(origins []string) []string {
	var hosts []string
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// GetCSRFToken retrieves the CSRF token from the Gin context.
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get(contextKeyCSRFToken); exists {
		if t, ok := token.(string); ok {
			return t
		}
	}
	return ""
}
