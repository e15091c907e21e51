package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/voicebridge/voicebridge/pkg/events"
)

const maxRequestBodySize = 1 << 20

// CreateEndpointRequest registers a new delivery endpoint. The signing secret
// is generated server-side and returned once, in the create response.
type CreateEndpointRequest struct {
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	EventTypes  []events.EventType `json:"event_types"`
	Description string             `json:"description,omitempty"`
}

// EndpointResponse is the API representation of an endpoint.
type EndpointResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	URL         string             `json:"url"`
	Secret      string             `json:"secret,omitempty"`
	EventTypes  []events.EventType `json:"event_types"`
	IsActive    bool               `json:"is_active"`
	Description string             `json:"description,omitempty"`
	CreatedAt   string             `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler provides REST endpoints for managing delivery endpoints.
type Handler struct {
	repo         *Repository
	validateOpts []ValidateOption
}

// NewHandler creates a notify API handler.
func NewHandler(repo *Repository, validateOpts ...ValidateOption) *Handler {
	return &Handler{repo: repo, validateOpts: validateOpts}
}

// RegisterRoutes registers the endpoint management routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/webhooks", h.Create)
	mux.HandleFunc("GET /api/v1/webhooks", h.List)
	mux.HandleFunc("GET /api/v1/webhooks/{id}", h.Get)
	mux.HandleFunc("DELETE /api/v1/webhooks/{id}", h.Delete)
	mux.HandleFunc("GET /api/v1/webhooks/{id}/deliveries", h.Deliveries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func toResponse(e *Endpoint, includeSecret bool) EndpointResponse {
	resp := EndpointResponse{
		ID:          e.ID,
		Name:        e.Name,
		URL:         e.URL,
		EventTypes:  []events.EventType(e.EventTypes),
		IsActive:    e.IsActive,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if includeSecret {
		resp.Secret = e.Secret
	}
	return resp
}

// Create handles POST /api/v1/webhooks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	if err := ValidateURL(req.URL, h.validateOpts...); err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint URL: "+err.Error())
		return
	}

	secret, err := GenerateSecret()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}

	e := &Endpoint{
		Name:        req.Name,
		URL:         req.URL,
		Secret:      secret,
		EventTypes:  EventTypeList(req.EventTypes),
		IsActive:    true,
		Description: req.Description,
	}
	if err := h.repo.CreateEndpoint(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(e, true))
}

// List handles GET /api/v1/webhooks.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.repo.ListEndpoints(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}
	resp := make([]EndpointResponse, 0, len(endpoints))
	for i := range endpoints {
		resp = append(resp, toResponse(&endpoints[i], false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/webhooks/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.repo.GetEndpoint(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(e, false))
}

// Delete handles DELETE /api/v1/webhooks/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteEndpoint(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deliveries handles GET /api/v1/webhooks/{id}/deliveries.
func (h *Handler) Deliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.repo.ListDeliveries(r.Context(), r.PathValue("id"), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []Delivery{}
	}
	writeJSON(w, http.StatusOK, deliveries)
}
