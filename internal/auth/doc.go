// Package auth provides local accounts and request authentication.
//
// Browsers log in with a form and carry an scs session cookie; API clients
// send "Authorization: Bearer <token>" with a token generated through
// /api/auth/token. Only the SHA-256 hash of a token is stored.
//
// Anyone may sign up; signed-up accounts are members. Staff accounts
// (librarian, admin) come from /setup for the first admin or from the
// create-user command. Whether a member may borrow is not decided here: that
// depends on the borrower capabilities, which the library package manages.
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex>       # CSRF signing key, generated if empty
//	AUTH_SESSION_LIFETIME=24h       # session duration
//	AUTH_TOKEN_EXPIRY=720h          # API token expiry, 0 disables expiry
//	AUTH_BCRYPT_COST=12             # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true        # HTTPS-only cookies
//	AUTH_MAX_LOGIN_ATTEMPTS=5       # failures before lockout
//
// # Usage
//
//	svc := auth.NewService(db, cfg.Auth)
//	sm, _ := auth.NewSessionManager(sqlDB, cfg.Database.Driver, cfg.Auth)
//	router.Use(sm.SessionLoadSave())
//	router.Use(auth.NewMiddleware(svc, sm, cfg.Auth).Handler())
//
// Handlers read the caller with GetUser, GetUserID and GetUserRole.
package auth
