package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sponge-dev/AIStoryBot/internal/config"
	"github.com/sponge-dev/AIStoryBot/internal/models"
	"github.com/sponge-dev/AIStoryBot/internal/ollama"
	"github.com/sponge-dev/AIStoryBot/internal/repository"
	"github.com/sponge-dev/AIStoryBot/internal/services"
)

type scriptedUpstream struct {
	chunks []ollama.GenerateResponse
	names  []string
	err    error
}

func (f *scriptedUpstream) Generate(ctx context.Context, req ollama.GenerateRequest, fn func(ollama.GenerateResponse) error) error {
	if f.err != nil {
		return f.err
	}
	for _, chunk := range f.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
		if chunk.Done {
			return nil
		}
	}
	return nil
}

func (f *scriptedUpstream) Tags(ctx context.Context) ([]string, error) {
	return f.names, f.err
}

type stubGenerationRepo struct{}

func (stubGenerationRepo) LogGeneration(ctx context.Context, log *models.GenerationLog) error {
	return nil
}

type stubEventRepo struct{}

func (stubEventRepo) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	return nil
}

type stubRepo struct {
	story repository.StoryRepositoryInterface
}

func (r *stubRepo) Story() repository.StoryRepositoryInterface           { return r.story }
func (r *stubRepo) Generation() repository.GenerationRepositoryInterface { return stubGenerationRepo{} }
func (r *stubRepo) Event() repository.EventRepositoryInterface           { return stubEventRepo{} }

func newGenerateServer(t *testing.T, upstream *scriptedUpstream) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		DefaultModel:     "llama2",
		DefaultMaxTokens: 1000,
		Temperature:      0.8,
		TopP:             0.9,
	}
	repo := &stubRepo{story: repository.NewStoryRepository(t.TempDir())}
	svc := services.NewGenerationService(upstream, repo, cfg)

	mux := http.NewServeMux()
	NewGenerateHandler(svc, 5*time.Second).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func parseSSE(t *testing.T, body string) []services.Event {
	t.Helper()
	var events []services.Event
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev services.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("invalid event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestGenerateStreamsEvents(t *testing.T) {
	server := newGenerateServer(t, &scriptedUpstream{chunks: []ollama.GenerateResponse{
		{Response: "Once"},
		{Response: " more"},
		{Done: true},
	}})

	resp, err := http.Post(server.URL+"/generate", "application/json",
		bytes.NewBufferString(`{"prompt":"a tale","model":"llama2"}`))
	if err != nil {
		t.Fatalf("POST /generate failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	events := parseSSE(t, buf.String())

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Chunk != "Once" || events[0].Done {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	final := events[len(events)-1]
	if !final.Done || final.FullStory != "Once more" || final.Filename == "" {
		t.Errorf("unexpected terminal event: %+v", final)
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	server := newGenerateServer(t, &scriptedUpstream{})

	resp, err := http.Post(server.URL+"/generate", "application/json",
		bytes.NewBufferString(`{"prompt":"   "}`))
	if err != nil {
		t.Fatalf("POST /generate failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestGenerateUpstreamFailureEndsStream(t *testing.T) {
	server := newGenerateServer(t, &scriptedUpstream{err: ollama.ErrUnavailable})

	resp, err := http.Post(server.URL+"/generate", "application/json",
		bytes.NewBufferString(`{"prompt":"doomed"}`))
	if err != nil {
		t.Fatalf("POST /generate failed: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	events := parseSSE(t, buf.String())

	if len(events) == 0 {
		t.Fatal("expected an error event")
	}
	final := events[len(events)-1]
	if final.Error == "" || final.ErrorKind != "upstream" {
		t.Errorf("unexpected terminal event: %+v", final)
	}
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	server := newGenerateServer(t, &scriptedUpstream{})

	resp, err := http.Get(server.URL + "/generate")
	if err != nil {
		t.Fatalf("GET /generate failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	status := services.NewStatusService(&scriptedUpstream{names: []string{"llama2", "dolphin-mistral"}})
	NewStatusHandler(status, time.Second).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	var body services.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !body.OllamaRunning || len(body.AvailableModels) != 2 {
		t.Errorf("unexpected status: %+v", body)
	}
	if len(body.UnrestrictedModels) != 1 || body.UnrestrictedModels[0] != "dolphin-mistral" {
		t.Errorf("unexpected classification: %+v", body)
	}
}

func TestHealthz(t *testing.T) {
	mux := http.NewServeMux()
	NewStatusHandler(services.NewStatusService(&scriptedUpstream{}), time.Second).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func newFilesServer(t *testing.T) (*httptest.Server, *repository.StoryRepository) {
	t.Helper()
	stories := repository.NewStoryRepository(t.TempDir())
	mux := http.NewServeMux()
	NewFilesHandler(stories).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, stories
}

func TestFilesList(t *testing.T) {
	server, stories := newFilesServer(t)
	if _, err := stories.Save("content", "a story", "llama2", false, ""); err != nil {
		t.Fatalf("seeding story: %v", err)
	}

	resp, err := http.Get(server.URL + "/files")
	if err != nil {
		t.Fatalf("GET /files failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Files []models.StoryInfo `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Files) != 1 || !strings.HasPrefix(body.Files[0].Name, "story_") {
		t.Errorf("unexpected listing: %+v", body.Files)
	}
}

func TestFilesListEmpty(t *testing.T) {
	server, _ := newFilesServer(t)

	resp, err := http.Get(server.URL + "/files")
	if err != nil {
		t.Fatalf("GET /files failed: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `"files":[]`) {
		t.Errorf("empty archive should list as [], got %s", buf.String())
	}
}

func TestReadFile(t *testing.T) {
	server, stories := newFilesServer(t)
	id, err := stories.Save("Once upon a time.", "a story", "llama2", false, "")
	if err != nil {
		t.Fatalf("seeding story: %v", err)
	}

	resp, err := http.Get(server.URL + "/read_file/" + id)
	if err != nil {
		t.Fatalf("GET /read_file failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["filename"] != id || !strings.Contains(body["content"], "Once upon a time.") {
		t.Errorf("unexpected response: %+v", body)
	}
}

func TestReadFileNotFound(t *testing.T) {
	server, _ := newFilesServer(t)

	resp, err := http.Get(server.URL + "/read_file/story_missing.txt")
	if err != nil {
		t.Fatalf("GET /read_file failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDownload(t *testing.T) {
	server, stories := newFilesServer(t)
	id, err := stories.Save("Download me.", "a story", "llama2", false, "")
	if err != nil {
		t.Fatalf("seeding story: %v", err)
	}

	resp, err := http.Get(server.URL + "/output/" + id)
	if err != nil {
		t.Fatalf("GET /output failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, id) {
		t.Errorf("Content-Disposition = %q, want attachment for %q", cd, id)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "Download me.") {
		t.Errorf("unexpected download body: %q", buf.String())
	}
}

func TestDownloadRejectsTraversal(t *testing.T) {
	server, _ := newFilesServer(t)

	resp, err := http.Get(server.URL + "/output/..%2Fsecrets.txt")
	if err != nil {
		t.Fatalf("GET /output failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("path traversal should not resolve to a file")
	}
}

func newTTSServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewTTSHandler(services.NewSpeechService(cfg)).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestTTSStreamsAudio(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer provider.Close()

	server := newTTSServer(t, &config.Config{
		SpeechAPIKey:  "key",
		SpeechBaseURL: provider.URL,
		SpeechVoiceID: "voice",
		SpeechTimeout: 5 * time.Second,
	})

	resp, err := http.Post(server.URL+"/tts", "application/json",
		bytes.NewBufferString(`{"text":"read me"}`))
	if err != nil {
		t.Fatalf("POST /tts failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q, want audio/mpeg", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if buf.String() != "mp3-bytes" {
		t.Errorf("body = %q", buf.String())
	}
}

func TestTTSUnconfigured(t *testing.T) {
	server := newTTSServer(t, &config.Config{SpeechTimeout: time.Second})

	resp, err := http.Post(server.URL+"/tts", "application/json",
		bytes.NewBufferString(`{"text":"read me"}`))
	if err != nil {
		t.Fatalf("POST /tts failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTTSEmptyText(t *testing.T) {
	server := newTTSServer(t, &config.Config{
		SpeechAPIKey:  "key",
		SpeechBaseURL: "http://127.0.0.1:1",
		SpeechTimeout: time.Second,
	})

	resp, err := http.Post(server.URL+"/tts", "application/json",
		bytes.NewBufferString(`{"text":"  "}`))
	if err != nil {
		t.Fatalf("POST /tts failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTTSProviderError(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"bad key"}`))
	}))
	defer provider.Close()

	server := newTTSServer(t, &config.Config{
		SpeechAPIKey:  "key",
		SpeechBaseURL: provider.URL,
		SpeechVoiceID: "voice",
		SpeechTimeout: 5 * time.Second,
	})

	resp, err := http.Post(server.URL+"/tts", "application/json",
		bytes.NewBufferString(`{"text":"read me"}`))
	if err != nil {
		t.Fatalf("POST /tts failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}
