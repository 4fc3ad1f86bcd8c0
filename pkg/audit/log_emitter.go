package audit

import (
	"context"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

// LogEmitter writes audit events as structured log lines
type LogEmitter struct {
	logger *observability.Logger
}

// NewLogEmitter creates an emitter writing to logger
func NewLogEmitter(logger *observability.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.WithField("component", "audit")}
}

// Emit logs the event at info level
func (l *LogEmitter) Emit(ctx context.Context, event *Event) error {
	l.logger.WithFields(map[string]interface{}{
		"event_type":    string(event.EventType),
		"username":      event.Username,
		"resource_id":   event.ResourceID,
		"resource_type": event.ResourceType,
		"customers":     event.Customers,
		"scopes":        event.Scopes,
		"roles":         event.Roles,
		"groups":        event.Groups,
		"ip_address":    event.Request.IPAddress,
		"user_agent":    event.Request.UserAgent,
		"request_id":    event.Request.RequestID,
		"timestamp":     event.Timestamp,
	}).Info(event.Message)
	return nil
}

func (l *LogEmitter) Close() error {
	return nil
}
