package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/sponge-dev/AIStoryBot/internal/models"
)

const separator = "=================================================="

// StoryRepository persists stories as plain UTF-8 text files under a single
// output directory. Each file gets a human-readable header; continuations
// append a separator block followed by the new content. Files are never
// deleted here. Concurrent continuation of the same archive id is not
// supported.
type StoryRepository struct {
	root string
	now  func() time.Time
}

func NewStoryRepository(root string) *StoryRepository {
	return &StoryRepository{
		root: root,
		now:  time.Now,
	}
}

// Save writes content to the archive and returns the archive id (filename).
// A continuation with existingID appends to that file and returns the same
// id; a missing target is an explicit ErrStoryNotFound, never a silent new
// file. A continuation without existingID starts a new file with a
// continuation-marked name.
func (r *StoryRepository) Save(content, direction, model string, continuation bool, existingID string) (string, error) {
	if err := os.MkdirAll(r.root, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if continuation && existingID != "" {
		return r.appendStory(content, direction, existingID)
	}

	timestamp := r.now().Format("20060102_150405")
	prefix := "story"
	if continuation {
		prefix = "story_continuation"
	}
	id := fmt.Sprintf("%s_%s_%s.txt", prefix, timestamp, sanitizeDirection(direction))

	var b strings.Builder
	fmt.Fprintf(&b, "Story Generated: %s\n", r.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Model: %s\n", model)
	fmt.Fprintf(&b, "Prompt: %s\n", direction)
	b.WriteString(separator + "\n\n")
	b.WriteString(content)

	if err := os.WriteFile(filepath.Join(r.root, id), []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write story file: %w", err)
	}
	return id, nil
}

func (r *StoryRepository) appendStory(content, direction, id string) (string, error) {
	path, err := r.Path(id)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open story file for append: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("\n\n" + separator + "\n")
	fmt.Fprintf(&b, "Story Continued: %s\n", r.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Additional Direction: %s\n", direction)
	b.WriteString(separator + "\n\n")
	b.WriteString(content)

	if _, err := f.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("failed to append to story file: %w", err)
	}
	return id, nil
}

// List returns all archived stories sorted by modification time descending.
func (r *StoryRepository) List() ([]models.StoryInfo, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.StoryInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var stories []models.StoryInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stories = append(stories, models.StoryInfo{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(stories, func(i, j int) bool {
		return stories[i].Modified.After(stories[j].Modified)
	})
	return stories, nil
}

// Read returns the full content of one archived story.
func (r *StoryRepository) Read(id string) (string, error) {
	path, err := r.Path(id)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read story file: %w", err)
	}
	return string(content), nil
}

// Path resolves an archive id to its file path, rejecting ids that escape
// the output directory.
func (r *StoryRepository) Path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || !strings.HasSuffix(id, ".txt") {
		return "", ErrStoryNotFound
	}
	path := filepath.Join(r.root, id)
	if _, err := os.Stat(path); err != nil {
		return "", ErrStoryNotFound
	}
	return path, nil
}

// sanitizeDirection derives the filename slug: first 50 characters, letters,
// digits, spaces, hyphens and underscores only, trailing spaces dropped,
// remaining spaces turned into underscores.
func sanitizeDirection(direction string) string {
	runes := []rune(direction)
	if len(runes) > 50 {
		runes = runes[:50]
	}

	var b strings.Builder
	for _, c := range runes {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == ' ' || c == '-' || c == '_' {
			b.WriteRune(c)
		}
	}
	slug := strings.TrimRight(b.String(), " ")
	return strings.ReplaceAll(slug, " ", "_")
}
