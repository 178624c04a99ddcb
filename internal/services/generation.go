package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sponge-dev/AIStoryBot/internal/config"
	"github.com/sponge-dev/AIStoryBot/internal/models"
	"github.com/sponge-dev/AIStoryBot/internal/ollama"
	"github.com/sponge-dev/AIStoryBot/internal/prompt"
	"github.com/sponge-dev/AIStoryBot/internal/repository"
)

// ErrEmptyDirection is returned when a request carries no usable direction.
var ErrEmptyDirection = errors.New("story direction is required")

// ErrPersistence marks a failed story archive write. It is surfaced to the
// client with its own error kind so it can be told apart from upstream
// failures.
var ErrPersistence = errors.New("failed to persist story")

// errSink marks a failed hand-off to the caller's event sink (typically a
// disconnected client). The session aborts without a terminal event: there
// is no one left to receive it.
var errSink = errors.New("event sink failed")

// errBudgetReached stops upstream consumption after a budget cutoff without
// treating the session as failed.
var errBudgetReached = errors.New("token budget reached")

type GenerationRequest struct {
	TraceID        string `json:"trace_id,omitempty"`
	ReqID          string `json:"req_id,omitempty"`
	Direction      string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	Continuation   bool   `json:"continuation,omitempty"`
	PriorNarrative string `json:"previous_story,omitempty"`
	ArchiveID      string `json:"original_filename,omitempty"`
	ReplyTo        string `json:"reply_to,omitempty"`
}

// Event is one generation stream event on the wire. A session emits zero or
// more fragment events (Chunk set, Done false) followed by exactly one
// terminal event: either Done true (with the archive filename and full
// story) or Error set.
type Event struct {
	Chunk             string `json:"chunk"`
	Done              bool   `json:"done"`
	TokenCount        int    `json:"token_count,omitempty"`
	Filename          string `json:"filename,omitempty"`
	FullStory         string `json:"full_story,omitempty"`
	TokenLimitReached bool   `json:"token_limit_reached,omitempty"`
	Error             string `json:"error,omitempty"`
	ErrorKind         string `json:"error_kind,omitempty"`
}

// GenerationResult is the aggregated outcome of one session, used by the
// queue transport where streaming is not available.
type GenerationResult struct {
	ReqID             string  `json:"req_id"`
	FullStory         string  `json:"full_story"`
	TokenCount        int     `json:"token_count"`
	TokenLimitReached bool    `json:"token_limit_reached"`
	Filename          string  `json:"filename,omitempty"`
	DurationMs        int64   `json:"duration_ms"`
	Error             string  `json:"error,omitempty"`
	ErrorKind         string  `json:"error_kind,omitempty"`
}

// UpstreamClient is the streaming generation upstream. *ollama.Client
// satisfies it; tests substitute fakes.
type UpstreamClient interface {
	Generate(ctx context.Context, req ollama.GenerateRequest, fn func(ollama.GenerateResponse) error) error
}

// GenerationService drives one generation session: it composes the prompt,
// pulls fragments from the upstream, enforces the token budget, persists the
// result through the story archive and hands normalized events to the
// caller. One session occupies one goroutine for its full duration; each
// fragment is fully processed before the next is pulled.
type GenerationService struct {
	upstream UpstreamClient
	repo     repository.Repository
	cfg      *config.Config
}

func NewGenerationService(upstream UpstreamClient, repo repository.Repository, cfg *config.Config) *GenerationService {
	return &GenerationService{
		upstream: upstream,
		repo:     repo,
		cfg:      cfg,
	}
}

// Stream runs one session and calls emit for every event. An emit error is
// treated as a gone caller: the upstream pull loop stops and the error is
// returned without a terminal event. Any other outcome produces exactly one
// terminal event. The token count is the number of fragments received —
// an approximation of true model tokens, not a correction of them.
func (s *GenerationService) Stream(ctx context.Context, req GenerationRequest, source string, emit func(Event) error) error {
	start := time.Now()
	s.normalize(&req)

	if strings.TrimSpace(req.Direction) == "" {
		return ErrEmptyDirection
	}

	finalPrompt := prompt.Compose(req.Direction, req.Model, req.Continuation, req.PriorNarrative)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Debug("Starting generation session",
		"req_id", req.ReqID,
		"source", source,
		"model", req.Model,
		"max_tokens", req.MaxTokens,
		"continuation", req.Continuation)

	var (
		accumulated strings.Builder
		fragments   int
		archiveID   string
		truncated   bool
		terminal    bool
	)

	send := func(ev Event) error {
		if err := emit(ev); err != nil {
			return fmt.Errorf("%w: %v", errSink, err)
		}
		return nil
	}

	persist := func() error {
		id, err := s.repo.Story().Save(accumulated.String(), req.Direction, req.Model, req.Continuation, req.ArchiveID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		archiveID = id
		return nil
	}

	complete := func(limitReached bool) error {
		if err := persist(); err != nil {
			return err
		}
		terminal = true
		truncated = limitReached
		return send(Event{
			Done:              true,
			TokenCount:        fragments,
			Filename:          archiveID,
			FullStory:         accumulated.String(),
			TokenLimitReached: limitReached,
		})
	}

	genReq := ollama.GenerateRequest{
		Model:  req.Model,
		Prompt: finalPrompt,
		Stream: true,
		Options: map[string]interface{}{
			"num_predict": req.MaxTokens,
			"temperature": s.cfg.Temperature,
			"top_p":       s.cfg.TopP,
			"num_gpu":     s.cfg.NumGPU,
			"num_thread":  s.cfg.NumThread,
			"stop":        s.cfg.StopSequences,
		},
	}

	err := s.upstream.Generate(ctx, genReq, func(chunk ollama.GenerateResponse) error {
		if chunk.Response != "" {
			accumulated.WriteString(chunk.Response)
			fragments++

			// The token ceiling is authoritative: a budget cutoff wins
			// over a done signal carried by the same fragment.
			if fragments >= req.MaxTokens {
				if err := complete(true); err != nil {
					return err
				}
				return errBudgetReached
			}

			if err := send(Event{Chunk: chunk.Response, TokenCount: fragments}); err != nil {
				return err
			}
		}
		if chunk.Done {
			return complete(false)
		}
		return nil
	})

	if errors.Is(err, errBudgetReached) {
		err = nil
	}

	switch {
	case errors.Is(err, errSink):
		// Caller is gone; nothing to emit. The cancelled context has
		// already released the upstream connection.
		slog.Warn("Generation session abandoned by caller",
			"req_id", req.ReqID, "fragments", fragments, "error", err)
		s.logGeneration(ctx, req, source, start, accumulated.String(), fragments, truncated, archiveID, "cancelled", err.Error())
		return err

	case errors.Is(err, ErrPersistence):
		slog.Error("Story archive write failed", "req_id", req.ReqID, "error", err)
		s.logGeneration(ctx, req, source, start, accumulated.String(), fragments, truncated, archiveID, "error", err.Error())
		if sendErr := send(Event{Error: err.Error(), ErrorKind: "persistence"}); sendErr != nil {
			return sendErr
		}
		return err

	case err != nil:
		msg := upstreamErrorMessage(err)
		slog.Error("Generation upstream failed", "req_id", req.ReqID, "error", err)
		s.logGeneration(ctx, req, source, start, accumulated.String(), fragments, truncated, archiveID, "error", msg)
		if sendErr := send(Event{Error: msg, ErrorKind: "upstream"}); sendErr != nil {
			return sendErr
		}
		return err
	}

	// Upstream closed without a done signal: treat whatever accumulated as
	// an implicit completion.
	if !terminal {
		if perr := complete(false); perr != nil {
			if errors.Is(perr, errSink) {
				return perr
			}
			s.logGeneration(ctx, req, source, start, accumulated.String(), fragments, truncated, archiveID, "error", perr.Error())
			if sendErr := send(Event{Error: perr.Error(), ErrorKind: "persistence"}); sendErr != nil {
				return sendErr
			}
			return perr
		}
	}

	status := "ok"
	if truncated {
		status = "truncated"
	}
	s.logGeneration(ctx, req, source, start, accumulated.String(), fragments, truncated, archiveID, status, "")

	slog.Info("Generation session completed",
		"req_id", req.ReqID,
		"source", source,
		"model", req.Model,
		"fragments", fragments,
		"truncated", truncated,
		"filename", archiveID,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Generate runs one session to completion and returns the aggregate result.
// Used by the queue transport, which has no fragment streaming.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest, source string) (*GenerationResult, error) {
	start := time.Now()
	s.normalize(&req)

	result := &GenerationResult{ReqID: req.ReqID}

	err := s.Stream(ctx, req, source, func(ev Event) error {
		switch {
		case ev.Error != "":
			result.Error = ev.Error
			result.ErrorKind = ev.ErrorKind
		case ev.Done:
			result.FullStory = ev.FullStory
			result.TokenCount = ev.TokenCount
			result.TokenLimitReached = ev.TokenLimitReached
			result.Filename = ev.Filename
		}
		return nil
	})

	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	return result, err
}

func (s *GenerationService) normalize(req *GenerationRequest) {
	if req.ReqID == "" {
		req.ReqID = ulid.Make().String()
	}
	if req.Model == "" {
		req.Model = s.cfg.DefaultModel
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = s.cfg.DefaultMaxTokens
	}
}

func (s *GenerationService) logGeneration(ctx context.Context, req GenerationRequest, source string, start time.Time, text string, fragments int, truncated bool, filename, status, errStr string) {
	s.repo.Generation().LogGeneration(ctx, &models.GenerationLog{
		Timestamp:    start,
		ReqID:        req.ReqID,
		Source:       source,
		Model:        req.Model,
		Direction:    req.Direction,
		Continuation: req.Continuation,
		ResponseText: text,
		Fragments:    fragments,
		Truncated:    truncated,
		Filename:     filename,
		DurationMs:   float64(time.Since(start).Milliseconds()),
		Status:       status,
		Error:        errStr,
	})
}

func upstreamErrorMessage(err error) string {
	var statusErr *ollama.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("Error: %d - %s", statusErr.Code, statusErr.Body)
	}
	if errors.Is(err, ollama.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Error connecting to Ollama: %v", err)
	}
	return fmt.Sprintf("Error reading from Ollama: %v", err)
}
