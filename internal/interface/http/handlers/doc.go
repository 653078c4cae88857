// Package handlers contains the HTTP handlers and middleware of the behavior
// interpreter API.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Authentication
//
// APIKeyAuth accepts a key in the X-API-Key header or as a Bearer token and
// compares it against bcrypt hashes, so plaintext keys never live in config:
//
//	auth, err := handlers.NewAPIKeyAuth("X-API-Key", cfg.APIKeyHashes)
//	router.Use(auth.Middleware)
package handlers
