package session

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Provider tags every session minted by this gateway
const Provider = "oidc"

// Claims is the payload of a session token
type Claims struct {
	jwt.RegisteredClaims

	Name              string         `json:"name,omitempty"`
	PreferredUsername string         `json:"preferred_username"`
	Provider          string         `json:"provider"`
	Customers         []string       `json:"customers"`
	Scope             SpaceDelimited `json:"scope"`
	Roles             []string       `json:"roles"`
	Groups            []string       `json:"groups"`
	Email             string         `json:"email,omitempty"`
	EmailVerified     bool           `json:"email_verified"`
}

// SpaceDelimited encodes a list as a single space separated JSON string,
// the OAuth2 representation of scopes
type SpaceDelimited []string

// MarshalJSON implements json.Marshaler
func (s SpaceDelimited) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(s, " "))
}

// UnmarshalJSON implements json.Unmarshaler
func (s *SpaceDelimited) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*s = strings.Fields(joined)
	return nil
}
