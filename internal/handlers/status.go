package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sponge-dev/AIStoryBot/internal/services"
)

// StatusHandler reports upstream availability and the model catalog.
type StatusHandler struct {
	statusService *services.StatusService
	timeout       time.Duration
}

func NewStatusHandler(statusService *services.StatusService, timeout time.Duration) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
		timeout:       timeout,
	}
}

func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/healthz", h.handleHealth)
}

func (h *StatusHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.statusService.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
