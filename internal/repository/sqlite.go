package repository

import (
	"context"
	"time"

	"github.com/sponge-dev/AIStoryBot/internal/models"
	"github.com/sponge-dev/AIStoryBot/internal/store"
)

// SQLiteRepository implements Repository; the generation and event logs live
// in SQLite, the story archive itself stays on the filesystem.
type SQLiteRepository struct {
	db             *store.DB
	storyRepo      StoryRepositoryInterface
	generationRepo GenerationRepositoryInterface
	eventRepo      EventRepositoryInterface
}

func NewSQLiteRepository(db *store.DB, storyRoot string) Repository {
	return &SQLiteRepository{
		db:             db,
		storyRepo:      NewStoryRepository(storyRoot),
		generationRepo: &SQLiteGenerationRepository{db: db},
		eventRepo:      &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) Story() StoryRepositoryInterface {
	return r.storyRepo
}

func (r *SQLiteRepository) Generation() GenerationRepositoryInterface {
	return r.generationRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

// SQLiteGenerationRepository handles generation session logging
type SQLiteGenerationRepository struct {
	db *store.DB
}

func (r *SQLiteGenerationRepository) LogGeneration(ctx context.Context, log *models.GenerationLog) error {
	r.db.Generation(
		log.Timestamp,
		log.ReqID,
		log.Source,
		log.Model,
		log.Direction,
		log.Continuation,
		log.ResponseText,
		log.Fragments,
		log.Truncated,
		log.Filename,
		time.Duration(log.DurationMs)*time.Millisecond,
		log.Status,
		log.Error,
	)
	return nil
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	r.db.Event(level, code, msg, meta)
	return nil
}
