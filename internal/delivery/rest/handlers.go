// Path: internal/delivery/rest/handlers.go
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chanbroker/internal/broker"
	"chanbroker/internal/logger"
)

// registryService defines the interface required by the handlers from the core service.
// This keeps the delivery layer decoupled from the full service implementation.
type registryService interface {
	Channels() []broker.ChannelInfo
}

// ChannelHandlers holds dependencies for the read-only channel endpoints.
type ChannelHandlers struct {
	service registryService
	logger  *slog.Logger
}

// NewChannelHandlers creates a new handler struct.
func NewChannelHandlers(s registryService, log *slog.Logger) *ChannelHandlers {
	return &ChannelHandlers{service: s, logger: log}
}

// ListChannels handles GET /channels.
func (h *ChannelHandlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"channels": h.service.Channels(),
	})
}

// GetChannel handles GET /channels/{name}.
func (h *ChannelHandlers) GetChannel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, c := range h.service.Channels() {
		if c.Name == name {
			h.writeJSON(w, r, http.StatusOK, c)
			return
		}
	}
	err := &broker.ChannelNotFoundError{Channel: name}
	h.writeJSON(w, r, http.StatusNotFound, map[string]string{"error": err.Error()})
}

// Health handles GET /healthz.
func (h *ChannelHandlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (h *ChannelHandlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response",
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
	}
}
