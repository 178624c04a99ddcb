package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sponge-dev/AIStoryBot/internal/config"
)

// ErrSpeechUnconfigured is returned when no speech API key is set. It is
// checked before any network traffic so callers can reject requests early.
var ErrSpeechUnconfigured = errors.New("speech synthesis not configured")

// ErrEmptyText is returned when there is no text to synthesize.
var ErrEmptyText = errors.New("no text provided")

// SpeechStatusError reports a non-success response from the speech provider.
type SpeechStatusError struct {
	Code int
	Body string
}

func (e *SpeechStatusError) Error() string {
	return fmt.Sprintf("speech provider returned %d: %s", e.Code, e.Body)
}

// SpeechService relays text to the ElevenLabs streaming synthesis endpoint
// and forwards the audio bytes to the caller's sink as they arrive.
type SpeechService struct {
	apiKey  string
	baseURL string
	voiceID string
	modelID string
	client  *http.Client
}

func NewSpeechService(cfg *config.Config) *SpeechService {
	return &SpeechService{
		apiKey:  cfg.SpeechAPIKey,
		baseURL: cfg.SpeechBaseURL,
		voiceID: cfg.SpeechVoiceID,
		modelID: cfg.SpeechModelID,
		client:  &http.Client{Timeout: cfg.SpeechTimeout},
	}
}

// Configured reports whether an API key is present.
func (s *SpeechService) Configured() bool {
	return s.apiKey != ""
}

type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings voiceSettings  `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize streams synthesized audio for text into sink, one chunk per
// call. An empty voiceID falls back to the configured default voice. A sink
// error aborts the relay and is returned as-is.
func (s *SpeechService) Synthesize(ctx context.Context, text, voiceID string, sink func([]byte) error) error {
	if !s.Configured() {
		return ErrSpeechUnconfigured
	}
	if text == "" {
		return ErrEmptyText
	}
	if voiceID == "" {
		voiceID = s.voiceID
	}

	payload, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return fmt.Errorf("encoding speech request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", s.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling speech provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &SpeechStatusError{Code: resp.StatusCode, Body: string(body)}
	}

	buf := make([]byte, 4096)
	var total int
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			total += n
			if sinkErr := sink(buf[:n]); sinkErr != nil {
				return sinkErr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading speech stream: %w", err)
		}
	}

	slog.Info("Speech synthesis relayed",
		"voice_id", voiceID,
		"text_len", len(text),
		"audio_bytes", total,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
