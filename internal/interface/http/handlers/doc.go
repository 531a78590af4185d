// Package handlers contains the reusable pieces of the HTTP interface:
// health checks and middleware.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
// # Authentication
//
// BearerAuth guards mutating routes with a bcrypt-hashed admin token:
//
//	auth, err := handlers.NewBearerAuth(cfg.AdminTokenHash)
//	mux.Handle("PUT /api/v1/schedule", auth.Middleware(h))
package handlers
