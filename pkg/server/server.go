package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sponge-dev/AIStoryBot/internal/config"
	"github.com/sponge-dev/AIStoryBot/internal/handlers"
	"github.com/sponge-dev/AIStoryBot/internal/repository"
	"github.com/sponge-dev/AIStoryBot/internal/services"
)

// Server assembles the HTTP surface of the story service: generation
// streaming, the story archive, upstream status and speech relay.
type Server struct {
	cfg               *config.Config
	generationService *services.GenerationService
	statusService     *services.StatusService
	speechService     *services.SpeechService
	repo              repository.Repository
}

func NewServer(cfg *config.Config, generation *services.GenerationService, status *services.StatusService, speech *services.SpeechService, repo repository.Repository) *Server {
	return &Server{
		cfg:               cfg,
		generationService: generation,
		statusService:     status,
		speechService:     speech,
		repo:              repo,
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	handlers.NewGenerateHandler(s.generationService, s.cfg.GenerateTimeout).RegisterRoutes(mux)
	handlers.NewStatusHandler(s.statusService, s.cfg.StatusTimeout).RegisterRoutes(mux)
	handlers.NewFilesHandler(s.repo.Story()).RegisterRoutes(mux)
	handlers.NewTTSHandler(s.speechService).RegisterRoutes(mux)

	slog.Info("HTTP server starting",
		"addr", s.cfg.HTTPAddr,
		"endpoints", []string{"/generate", "/status", "/files", "/output/", "/read_file/", "/tts", "/healthz"})

	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
