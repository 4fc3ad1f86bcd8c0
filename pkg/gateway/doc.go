// Package gateway exchanges identity provider access tokens for session tokens.
//
// Service runs the exchange: it resolves the access token through the
// userinfo endpoint, checks the platform account status and the group and
// domain allow-lists, derives roles, looks up scopes and customers, records
// the last login and an audit event, and finally mints a session token.
// Every failure is an *Error whose Kind maps to an HTTP status.
//
// # HTTP Endpoints
//
//	POST    /auth/oidc            {"access_token": "..."} -> {"token": "..."}
//	OPTIONS /auth/oidc            CORS preflight
//	POST    /auth/oidc/authorize  {"username": "..."} (optional)
//
// # Usage
//
//	service, err := gateway.NewService(gateway.Config{
//		Resolver:  resolver,
//		Evaluator: authz.NewEvaluator(policy, accountStore),
//		Accounts:  accountStore,
//		Scopes:    lookup,
//		Customers: lookup,
//		Audit:     emitter,
//		Minter:    minter,
//		Lifetime:  14 * 24 * time.Hour,
//	})
//	router := mux.NewRouter()
//	gateway.NewHandlers(service, false).RegisterRoutes(router)
package gateway
