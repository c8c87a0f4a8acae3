// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including bearer-token
// authentication, permission gating, and rate limiting (in-memory and distributed).
//
// # Middleware Components
//
// AuthMiddleware: Bearer-token authentication
//
//	authMW := middleware.NewAuthMiddleware(tokenManager, false)
//	router.Use(authMW.Handler)
//	// Extracts Bearer token, validates it, adds the verified claims to the request
//
// RequirePermission: requires a permission key on the caller's claims
//
//	router.Handle("/employees", middleware.RequirePermission("hr-portal",
//		"hr-portal.api_employees.read.name")(handler))
//
// RateLimitMiddleware: In-memory rate limiting
//
//	router.Use(middleware.NewRateLimitMiddleware().Handler)
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting
//
//	router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst, keyed by client IP
// Per-Subject: 1000 req/min, 50 burst, keyed by authenticated subject
//
// # Related Packages
//
//   - pkg/tokens: Token validation
//   - pkg/contextkeys: Claims propagation through request context
package middleware
