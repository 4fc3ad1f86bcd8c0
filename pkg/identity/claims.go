package identity

import (
	"strconv"
	"strings"
)

// FieldMapping names the userinfo claims read into an Identity
type FieldMapping struct {
	Subject       string
	Name          string
	Login         string
	Email         string
	EmailVerified string
	Groups        string
}

// DefaultFieldMapping returns the standard OIDC claim names
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Subject:       "sub",
		Name:          "name",
		Login:         "preferred_username",
		Email:         "email",
		EmailVerified: "email_verified",
		Groups:        "groups",
	}
}

// MapClaims builds an Identity from a decoded userinfo document.
// It never fails; call Validate on the result.
func MapClaims(claims map[string]interface{}, fields FieldMapping) *Identity {
	email := getStringValue(claims, fields.Email)

	login := getStringValue(claims, fields.Login)
	if login == "" {
		login = email
	}

	emailVerified, ok := getBoolValue(claims, fields.EmailVerified)
	if !ok {
		emailVerified = email != ""
	}

	return &Identity{
		ID:            getStringValue(claims, fields.Subject),
		Name:          getStringValue(claims, fields.Name),
		Login:         login,
		Email:         email,
		EmailVerified: emailVerified,
		Groups:        getArrayValue(claims, fields.Groups),
		Roles:         []string{},
	}
}

// getStringValue reads a string claim. Numbers are formatted without exponent
// so numeric subject IDs survive.
func getStringValue(data map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// getArrayValue reads a list of strings. A bare string becomes a one-element
// list and non-string members are skipped. The result is never nil.
func getArrayValue(data map[string]interface{}, key string) []string {
	result := []string{}
	if key == "" {
		return result
	}
	switch v := data[key].(type) {
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
	case string:
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}

// getBoolValue reads a boolean claim given as a JSON bool or a "true"/"false" string
func getBoolValue(data map[string]interface{}, key string) (bool, bool) {
	if key == "" {
		return false, false
	}
	switch v := data[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
