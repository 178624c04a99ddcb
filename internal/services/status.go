package services

import (
	"context"
	"log/slog"

	"github.com/sponge-dev/AIStoryBot/internal/catalog"
)

// TagLister lists the model names the upstream currently serves.
type TagLister interface {
	Tags(ctx context.Context) ([]string, error)
}

// Status describes upstream availability and the model catalog, split by
// content-policy classification.
type Status struct {
	OllamaRunning      bool     `json:"ollama_running"`
	AvailableModels    []string `json:"available_models"`
	StandardModels     []string `json:"standard_models"`
	UnrestrictedModels []string `json:"unrestricted_models"`
}

// StatusService checks the generation upstream and classifies its models.
type StatusService struct {
	upstream TagLister
}

func NewStatusService(upstream TagLister) *StatusService {
	return &StatusService{upstream: upstream}
}

// Check probes the upstream model catalog. An unreachable upstream is a
// normal outcome, not an error: the status reports it as not running with
// empty model lists.
func (s *StatusService) Check(ctx context.Context) *Status {
	names, err := s.upstream.Tags(ctx)
	if err != nil {
		slog.Warn("Ollama status check failed", "error", err)
		return &Status{
			AvailableModels:    []string{},
			StandardModels:     []string{},
			UnrestrictedModels: []string{},
		}
	}

	standard, unrestricted := catalog.Categorize(names)
	if names == nil {
		names = []string{}
	}
	if standard == nil {
		standard = []string{}
	}
	if unrestricted == nil {
		unrestricted = []string{}
	}
	return &Status{
		OllamaRunning:      true,
		AvailableModels:    names,
		StandardModels:     standard,
		UnrestrictedModels: unrestricted,
	}
}
