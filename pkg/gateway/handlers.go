package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/untitledds/alerta-oauth2-oidc/pkg/audit"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/httputil"
	"github.com/untitledds/alerta-oauth2-oidc/pkg/observability"
)

// Exchanger is the part of Service used by the HTTP handlers
type Exchanger interface {
	Exchange(ctx context.Context, req *ExchangeRequest, info audit.RequestInfo) (*ExchangeResponse, error)
	Authorize(ctx context.Context, username string) error
}

// Handlers serves the exchange endpoints
type Handlers struct {
	service          Exchanger
	authorizeEnabled bool
}

// NewHandlers creates a new handlers instance. The username authorize
// endpoint is only routed when authorizeEnabled is set.
func NewHandlers(service Exchanger, authorizeEnabled bool) *Handlers {
	return &Handlers{
		service:          service,
		authorizeEnabled: authorizeEnabled,
	}
}

// RegisterRoutes registers the exchange routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/oidc", h.exchange).Methods(http.MethodPost)
	router.HandleFunc("/auth/oidc", h.preflight).Methods(http.MethodOptions)

	if h.authorizeEnabled {
		router.HandleFunc("/auth/oidc/authorize", h.authorize).Methods(http.MethodPost)
		router.HandleFunc("/auth/oidc/authorize", h.preflight).Methods(http.MethodOptions)
	}
}

// exchange handles POST /auth/oidc
func (h *Handlers) exchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Missing access token")
		return
	}

	resp, err := h.service.Exchange(r.Context(), &req, audit.RequestInfoFromHTTP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, resp)
}

// authorize handles POST /auth/oidc/authorize
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Missing username")
		return
	}

	if err := h.service.Authorize(r.Context(), req.Username); err != nil {
		writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// preflight answers OPTIONS requests that reach the router. CORS headers are
// set by httputil.CORSMiddleware.
func (h *Handlers) preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		observability.FromContext(r.Context()).WithError(err).Error("unclassified exchange error")
		httputil.WriteInternalError(w)
		return
	}

	status := gwErr.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("exchange failed")
	}
	httputil.WriteErrorMessage(w, status, gwErr.Message)
}
