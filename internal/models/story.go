package models

import "time"

// StoryInfo describes one archived story file.
type StoryInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// GenerationLog represents one logged generation session.
type GenerationLog struct {
	Timestamp    time.Time `json:"ts"`
	ReqID        string    `json:"req_id"`
	Source       string    `json:"source"`
	Model        string    `json:"model"`
	Direction    string    `json:"direction"`
	Continuation bool      `json:"continuation"`
	ResponseText string    `json:"response_text"`
	Fragments    int       `json:"fragments"`
	Truncated    bool      `json:"truncated"`
	Filename     string    `json:"filename"`
	DurationMs   float64   `json:"dur_ms"`
	Status       string    `json:"status"`
	Error        string    `json:"error"`
}
