package auth

import "github.com/golang-jwt/jwt/v5"

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  int64
	IsAdmin bool
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID  int64 `json:"user_id"`
	IsAdmin bool  `json:"is_admin"`
	jwt.RegisteredClaims
}

// Context is the caller identity handed to every service entry point.
// The zero value is an anonymous caller.
type Context struct {
	UserID  int64
	IsAdmin bool
	// System marks in-process callers such as scheduled jobs. They carry
	// admin rights but no user id.
	System bool
}

// System returns the identity used by background jobs.
func System() Context {
	return Context{IsAdmin: true, System: true}
}

// Authenticated reports whether the caller presented a valid identity.
func (c Context) Authenticated() bool {
	return c.UserID > 0 || c.System
}

// Context converts verified claims into the service-level identity.
func (c AccessTokenClaims) Context() Context {
	return Context{UserID: c.UserID, IsAdmin: c.IsAdmin}
}
