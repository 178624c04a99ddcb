package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sponge-dev/AIStoryBot/internal/services"
)

// GenerateHandler streams story generation sessions to browsers as
// server-sent events.
type GenerateHandler struct {
	generationService *services.GenerationService
	timeout           time.Duration
}

func NewGenerateHandler(generationService *services.GenerationService, timeout time.Duration) *GenerateHandler {
	return &GenerateHandler{
		generationService: generationService,
		timeout:           timeout,
	}
}

func (h *GenerateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/generate", h.handleGenerate)
}

func (h *GenerateHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req services.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Reject before committing to the event stream so the browser gets a
	// plain 400 instead of a one-event stream.
	if strings.TrimSpace(req.Direction) == "" {
		writeJSONError(w, http.StatusBadRequest, "Please provide a story prompt")
		return
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		req.TraceID = traceID
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.generationService.Stream(ctx, req, "http.generate", func(ev services.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, services.ErrEmptyDirection) {
		// The terminal error event already went to the client where
		// possible; here we only note the outcome.
		slog.Debug("Generation stream ended with error", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
