package audit

import (
	"encoding/json"
	"time"
)

// EventType names an audit event
type EventType string

const (
	// EventTypeOIDCLogin records a successful token exchange
	EventTypeOIDCLogin EventType = "oidc-login"
)

// ResourceTypeUser is the resource type of login events
const ResourceTypeUser = "user"

// Event is a single audit record
type Event struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Message   string    `json:"message,omitempty"`

	// Actor and subject
	Username     string `json:"username"`
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`

	// Session content at the time of the event
	Customers []string `json:"customers"`
	Scopes    []string `json:"scopes"`
	Roles     []string `json:"roles"`
	Groups    []string `json:"groups"`

	Request RequestInfo `json:"request"`
}

// RequestInfo is the inbound request context attached to an event
type RequestInfo struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewLoginEvent builds the event recorded for a successful exchange
func NewLoginEvent(at time.Time, login, subject string, customers, scopes, roles, groups []string, request RequestInfo) *Event {
	return &Event{
		Timestamp:    at,
		EventType:    EventTypeOIDCLogin,
		Message:      "user login via OAuth2/OIDC",
		Username:     login,
		ResourceID:   subject,
		ResourceType: ResourceTypeUser,
		Customers:    customers,
		Scopes:       scopes,
		Roles:        roles,
		Groups:       groups,
		Request:      request,
	}
}
