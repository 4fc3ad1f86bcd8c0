// Package contextkeys provides centralized context key definitions
//
// All context keys used across the gateway are defined here so that
// packages setting and reading a value agree on the key.
//
//	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, requestID)
//	requestID, _ := ctx.Value(contextkeys.RequestIDKey).(string)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit events
	// Type: string
	RequestIDKey Key = "request_id"

	// LoginKey contains the login being exchanged once the identity is resolved
	// Set by: gateway.Service.Exchange
	// Used by: Logger
	// Type: string
	LoginKey Key = "login"

	// LoggerKey contains the request-scoped logger
	// Set by: httputil.RequestIDMiddleware
	// Used by: Handlers and the exchange service
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// ClientIPKey contains the client address taken from proxy headers
	// Set by: httputil.TrustedProxyMiddleware, only for requests from a trusted proxy
	// Used by: httputil.ClientIP (rate limit keys, audit events, request logs)
	// Type: string
	ClientIPKey Key = "client_ip"
)
