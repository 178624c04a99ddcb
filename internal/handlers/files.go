package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sponge-dev/AIStoryBot/internal/models"
	"github.com/sponge-dev/AIStoryBot/internal/repository"
)

// FilesHandler serves the story archive: listing, inline reading for the
// continuation flow, and raw downloads.
type FilesHandler struct {
	stories repository.StoryRepositoryInterface
}

func NewFilesHandler(stories repository.StoryRepositoryInterface) *FilesHandler {
	return &FilesHandler{stories: stories}
}

func (h *FilesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/files", h.handleList)
	mux.HandleFunc("/output/", h.handleDownload)
	mux.HandleFunc("/read_file/", h.handleRead)
}

func (h *FilesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	files, err := h.stories.List()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Could not list stories")
		return
	}
	if files == nil {
		files = []models.StoryInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"files": files})
}

func (h *FilesHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/output/")
	path, err := h.stories.Path(id)
	if err != nil {
		if errors.Is(err, repository.ErrStoryNotFound) {
			writeJSONError(w, http.StatusNotFound, "File not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Could not open story")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (h *FilesHandler) handleRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/read_file/")
	content, err := h.stories.Read(id)
	if err != nil {
		if errors.Is(err, repository.ErrStoryNotFound) {
			writeJSONError(w, http.StatusNotFound, "File not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Could not read story")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"content":  content,
		"filename": id,
	})
}
