package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sponge-dev/AIStoryBot/internal/services"
)

// TTSHandler relays text-to-speech requests and streams back the audio.
type TTSHandler struct {
	speechService *services.SpeechService
}

func NewTTSHandler(speechService *services.SpeechService) *TTSHandler {
	return &TTSHandler{speechService: speechService}
}

func (h *TTSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/tts", h.handleTTS)
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

func (h *TTSHandler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	if !h.speechService.Configured() {
		writeJSONError(w, http.StatusBadRequest, "Text-to-speech is not configured")
		return
	}

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "No text provided")
		return
	}

	flusher, _ := w.(http.Flusher)

	// Headers are deferred to the first audio chunk so provider errors can
	// still produce a JSON status response.
	started := false
	err := h.speechService.Synthesize(r.Context(), req.Text, req.VoiceID, func(chunk []byte) error {
		if !started {
			w.Header().Set("Content-Type", "audio/mpeg")
			started = true
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if started {
			slog.Warn("Speech relay aborted mid-stream", "error", err)
			return
		}

		var statusErr *services.SpeechStatusError
		switch {
		case errors.As(err, &statusErr):
			writeJSONError(w, http.StatusBadGateway, statusErr.Error())
		case errors.Is(err, services.ErrEmptyText):
			writeJSONError(w, http.StatusBadRequest, "No text provided")
		default:
			writeJSONError(w, http.StatusBadGateway, "Speech synthesis failed")
		}
	}
}
