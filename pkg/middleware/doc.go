// Package middleware provides the HTTP middleware that establishes who is calling and how
// often they may call.
//
// BearerAuth verifies an ID token, resolves it to a directory user and stores that user in
// the request context:
//
//	router.Use(middleware.NewBearerAuth(verifier, directory, logger).Handler)
//
// RateLimit throttles by user, or by client IP for anonymous callers. LocalLimiter keeps
// counters in process; RedisLimiter shares a fixed window across replicas and fails open
// when Redis is unavailable.
package middleware
