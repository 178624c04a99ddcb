package repository

import (
	"context"
	"errors"

	"github.com/sponge-dev/AIStoryBot/internal/models"
)

// ErrStoryNotFound is returned when an archive id does not resolve to a file.
var ErrStoryNotFound = errors.New("story not found")

// Repository aggregates all repository interfaces
type Repository interface {
	Story() StoryRepositoryInterface
	Generation() GenerationRepositoryInterface
	Event() EventRepositoryInterface
}

// StoryRepositoryInterface defines story archive operations
type StoryRepositoryInterface interface {
	// Save persists generated content and returns the archive id. With
	// continuation and a non-empty existingID the content is appended to
	// the existing file; otherwise a new file is created.
	Save(content, direction, model string, continuation bool, existingID string) (string, error)
	List() ([]models.StoryInfo, error)
	Read(id string) (string, error)
	Path(id string) (string, error)
}

// GenerationRepositoryInterface defines generation session logging
type GenerationRepositoryInterface interface {
	LogGeneration(ctx context.Context, log *models.GenerationLog) error
}

// EventRepositoryInterface defines event logging operations
type EventRepositoryInterface interface {
	LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error
}
