// Package config loads gateway configuration from environment variables and
// an optional YAML file.
//
// The file named by GATEWAY_CONFIG_FILE is a flat mapping keyed by the same
// names as the environment variables. Environment variables override it.
// Lists may be YAML sequences or comma separated strings; GROUP_TO_ROLE_MAPPING
// may be a YAML mapping or "group=role,group=role".
//
// Identity provider and policy:
//
//	OIDC_USERINFO_URL="https://idp.example.com/userinfo"
//	USERINFO_LOGIN_FIELD="preferred_username"
//	OIDC_GROUPS_CLAIM="groups"
//	ALLOWED_OIDC_GROUPS="eng,ops"
//	ALLOWED_EMAIL_DOMAINS="example.com"
//	ADMIN_GROUP="alerta-admins"
//	GROUP_TO_ROLE_MAPPING="eng=developer,ops=developer"
//	TOKEN_LIFETIME="1209600"
//
// Infrastructure:
//
//	GATEWAY_PORT="8080"
//	GATEWAY_HEALTH_PORT="9090"
//	GATEWAY_SESSION_SECRET="..."
//	GATEWAY_POSTGRES_URL="postgres://..."
//	GATEWAY_REDIS_URL="redis://localhost:6379/0"
//	GATEWAY_AUDIT_SINKS="db,log"
//
// Configuration is read once at startup and is immutable afterwards.
package config
