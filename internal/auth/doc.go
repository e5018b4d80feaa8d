// Package auth provides bearer-token authentication for the reactions API.
//
// # Tokens
//
// Clients authenticate with HS256 JWTs signed with the configured
// auth.jwt_secret (at least MinSecretLength bytes). The "sub" claim is the
// id of the user whose reactions the request reads or writes:
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
//	token, err := verifier.Generate("user-42", 24*time.Hour)
//
// The coven-reactions token command mints tokens the same way.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware rejects requests without a valid token with 401 and a
// JSON error body.
// Handlers read the caller with FromContext or UserID.
package auth
