// Package auth provides bearer-token authentication for the JSON API.
//
// Sessions are stateless JWTs signed with the configured webserver secret.
// The middleware verifies the Authorization header, rejects the request with
// 401 if the token is missing or invalid, and stores the verified claims in
// fiber.Locals for handlers.
//
// Usage:
//
//	api := app.Group("/api", auth.Require(cfg.Webserver.JWTSecret))
//
// Handlers read the caller identity back with CurrentClaims or
// CurrentUsername.
package auth
