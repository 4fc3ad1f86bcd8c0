package audit

import (
	"context"
	"net/http"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/httputil"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

// Emitter records audit events
type Emitter interface {
	// Emit records event. Implementations may fill in event.ID.
	Emit(ctx context.Context, event *Event) error

	// Close flushes and releases the sink
	Close() error
}

// RequestInfoFromHTTP captures the audit-relevant parts of r
func RequestInfoFromHTTP(r *http.Request) RequestInfo {
	if r == nil {
		return RequestInfo{}
	}
	return RequestInfo{
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: observability.GetRequestID(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
}

// NopEmitter discards events
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, event *Event) error {
	return nil
}

func (NopEmitter) Close() error {
	return nil
}
