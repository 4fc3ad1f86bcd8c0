// Package httputil provides HTTP helpers shared by the gateway: JSON error
// bodies, request parsing and the middleware chain (request IDs, logging,
// panic recovery, CORS, body limits).
//
// Errors are always written as
//
//	{"status": "error", "message": "User alice is not authorized", "code": 403}
//
// A typical chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.CORSMiddleware(cfg.CORS.AllowedOrigins),
//		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
//	)(router)
package httputil
