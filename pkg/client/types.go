package client

import "time"

// StoryRequest is a story generation request submitted over the work queue.
type StoryRequest struct {
	ReqID          string `json:"req_id"`
	Direction      string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	Continuation   bool   `json:"continuation,omitempty"`
	PriorNarrative string `json:"previous_story,omitempty"`
	ArchiveID      string `json:"original_filename,omitempty"`
	ReplyTo        string `json:"reply_to,omitempty"`
}

// StoryResponse is the aggregated outcome of one generation session.
type StoryResponse struct {
	ReqID             string `json:"req_id"`
	FullStory         string `json:"full_story"`
	TokenCount        int    `json:"token_count"`
	TokenLimitReached bool   `json:"token_limit_reached"`
	Filename          string `json:"filename,omitempty"`
	DurationMs        int64  `json:"duration_ms"`
	Error             string `json:"error,omitempty"`
	ErrorKind         string `json:"error_kind,omitempty"`
}

// HealthStatus mirrors the service heartbeat payload.
type HealthStatus struct {
	Service         string    `json:"service"`
	Status          string    `json:"status"`
	OllamaRunning   bool      `json:"ollama_running"`
	AvailableModels []string  `json:"available_models"`
	LastActivity    time.Time `json:"last_activity"`
	Endpoint        string    `json:"endpoint"`
	NATSTopic       string    `json:"nats_topic"`
	Version         string    `json:"version"`
}
