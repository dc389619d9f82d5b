package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
	"github.com/pulsehq/pulse-backend/internal/core/ports"
)

type fakeBackend struct {
	t *testing.T

	mu            sync.Mutex
	fileStates    []string
	statePolls    int
	models        []map[string]any
	generateFails int
	generateCalls []string
	generateText  string
	deleteCalls   int
	deleteStatus  int
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"file": map[string]any{
			"name":     "files/abc",
			"uri":      "https://files.example/abc",
			"mimeType": "video/mp4",
			"state":    b.nextState(),
		}})
	})

	mux.HandleFunc("GET /v1beta/files/abc", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.statePolls++
		b.mu.Unlock()
		writeJSON(w, map[string]any{
			"name":     "files/abc",
			"uri":      "https://files.example/abc",
			"mimeType": "video/mp4",
			"state":    b.nextState(),
		})
	})

	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"models": b.models})
	})

	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1beta/models/"), ":generateContent")
		b.mu.Lock()
		b.generateCalls = append(b.generateCalls, model)
		fail := len(b.generateCalls) <= b.generateFails
		b.mu.Unlock()

		if fail {
			http.Error(w, fmt.Sprintf("model %s is not available", model), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"candidates": []map[string]any{{
			"content": map[string]any{"parts": []map[string]any{{"text": b.generateText}}},
		}}})
	})

	mux.HandleFunc("DELETE /v1beta/files/abc", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.deleteCalls++
		status := b.deleteStatus
		b.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	})

	return mux
}

// nextState consumes the scripted state sequence, sticking on the last entry.
func (b *fakeBackend) nextState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.fileStates) == 0 {
		return fileStateActive
	}
	state := b.fileStates[0]
	if len(b.fileStates) > 1 {
		b.fileStates = b.fileStates[1:]
	}
	return state
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func generationModel(name string) map[string]any {
	return map[string]any{
		"name":                       "models/" + name,
		"supportedGenerationMethods": []string{"generateContent", "countTokens"},
	}
}

func newTestClient(t *testing.T, backend *fakeBackend, mutate func(*Config)) (*Client, string) {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	cfg := Config{
		BaseURL:         server.URL,
		APIKey:          "test-key",
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 10,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	localPath := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(localPath, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}
	return New(cfg, nil), localPath
}

func classify(t *testing.T, c *Client, localPath string, phases *[]ports.ClassifyPhase) (domain.Verdict, error) {
	t.Helper()
	req := ports.ClassifyRequest{
		LocalPath:   localPath,
		MimeType:    "video/mp4",
		DisplayName: "clip",
	}
	if phases != nil {
		req.OnPhase = func(p ports.ClassifyPhase) { *phases = append(*phases, p) }
	}
	return c.ClassifyFile(context.Background(), req)
}

func TestClassifyFileWithoutCredentialFailsFast(t *testing.T) {
	c := New(Config{APIKey: ""}, nil)
	_, err := c.ClassifyFile(context.Background(), ports.ClassifyRequest{LocalPath: "unused"})
	if !domain.IsKind(err, domain.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestClassifyFileHappyPath(t *testing.T) {
	backend := &fakeBackend{
		t:            t,
		fileStates:   []string{"PROCESSING", "PROCESSING", "ACTIVE"},
		models:       []map[string]any{generationModel("gemini-1.5-pro")},
		generateText: "```json\n{\"isSafe\": false, \"reason\": \"X\", \"timestamp\": \"00:12\"}\n```",
	}
	var phases []ports.ClassifyPhase
	c, localPath := newTestClient(t, backend, nil)

	verdict, err := classify(t, c, localPath, &phases)
	if err != nil {
		t.Fatalf("ClassifyFile() error = %v", err)
	}
	if verdict.IsSafe || verdict.Reason != "X" || verdict.Timestamp != "00:12" {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}

	want := []ports.ClassifyPhase{ports.PhaseSubmitted, ports.PhaseFileReady, ports.PhaseGenerated}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}

	if backend.statePolls < 2 {
		t.Fatalf("expected at least 2 state polls, got %d", backend.statePolls)
	}
	if backend.deleteCalls != 1 {
		t.Fatalf("expected remote cleanup, delete calls = %d", backend.deleteCalls)
	}
}

func TestClassifyFileCandidateFallback(t *testing.T) {
	backend := &fakeBackend{
		t: t,
		models: []map[string]any{
			generationModel("gemini-1.5-pro"),
			generationModel("gemini-1.5-flash"),
			generationModel("gemini-pro"),
		},
		generateFails: 2,
		generateText:  `{"isSafe": true, "reason": "clean", "timestamp": null}`,
	}
	c, localPath := newTestClient(t, backend, nil)

	verdict, err := classify(t, c, localPath, nil)
	if err != nil {
		t.Fatalf("ClassifyFile() error = %v", err)
	}
	if !verdict.IsSafe {
		t.Fatalf("expected safe verdict, got %+v", verdict)
	}
	if len(backend.generateCalls) != 3 {
		t.Fatalf("expected exactly 3 submission attempts, got %d (%v)", len(backend.generateCalls), backend.generateCalls)
	}
	if backend.generateCalls[2] != "gemini-pro" {
		t.Fatalf("expected third candidate to win, calls = %v", backend.generateCalls)
	}
}

func TestClassifyFileAllCandidatesFail(t *testing.T) {
	backend := &fakeBackend{
		t: t,
		models: []map[string]any{
			generationModel("gemini-1.5-pro"),
			generationModel("gemini-1.5-flash"),
		},
		generateFails: 99,
	}
	c, localPath := newTestClient(t, backend, nil)

	_, err := classify(t, c, localPath, nil)
	if !domain.IsKind(err, domain.ErrAllModelsFailed) {
		t.Fatalf("expected ErrAllModelsFailed, got %v", err)
	}
	msg := err.Error()
	for _, candidate := range []string{"gemini-1.5-pro", "gemini-1.5-flash"} {
		if !strings.Contains(msg, candidate) {
			t.Fatalf("aggregate error must name candidate %q: %s", candidate, msg)
		}
	}
	if !strings.Contains(msg, "not available") {
		t.Fatalf("aggregate error must carry the last underlying error: %s", msg)
	}
}

func TestClassifyFileDiscoveryFailureUsesDefaultCandidates(t *testing.T) {
	mux := http.NewServeMux()
	var generateCalls []string
	mux.HandleFunc("POST /upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"file": map[string]any{
			"name": "files/abc", "uri": "u", "mimeType": "video/mp4", "state": "ACTIVE",
		}})
	})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "discovery down", http.StatusInternalServerError)
	})
	mux.HandleFunc("POST /v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1beta/models/"), ":generateContent")
		generateCalls = append(generateCalls, model)
		writeJSON(w, map[string]any{"candidates": []map[string]any{{
			"content": map[string]any{"parts": []map[string]any{{"text": `{"isSafe": true, "reason": "ok", "timestamp": null}`}}},
		}}})
	})
	mux.HandleFunc("DELETE /v1beta/files/abc", func(w http.ResponseWriter, r *http.Request) {})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	localPath := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(localPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	c := New(Config{BaseURL: server.URL, APIKey: "k", PollInterval: time.Millisecond}, nil)
	if _, err := classify(t, c, localPath, nil); err != nil {
		t.Fatalf("ClassifyFile() error = %v", err)
	}
	if len(generateCalls) != 1 || generateCalls[0] != defaultModelCandidates[0] {
		t.Fatalf("expected first default candidate, got %v", generateCalls)
	}
}

func TestClassifyFilePollTimeout(t *testing.T) {
	backend := &fakeBackend{
		t:          t,
		fileStates: []string{"PROCESSING"},
		models:     []map[string]any{generationModel("gemini-1.5-pro")},
	}
	c, localPath := newTestClient(t, backend, func(cfg *Config) {
		cfg.PollMaxAttempts = 3
	})

	_, err := classify(t, c, localPath, nil)
	if !domain.IsKind(err, domain.ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
}

func TestClassifyFileRemoteFailureIsHardError(t *testing.T) {
	backend := &fakeBackend{
		t:          t,
		fileStates: []string{"PROCESSING", "FAILED"},
		models:     []map[string]any{generationModel("gemini-1.5-pro")},
	}
	c, localPath := newTestClient(t, backend, nil)

	_, err := classify(t, c, localPath, nil)
	if !domain.IsKind(err, domain.ErrRemoteProcessing) {
		t.Fatalf("expected ErrRemoteProcessing, got %v", err)
	}
}

func TestClassifyFileMalformedVerdict(t *testing.T) {
	backend := &fakeBackend{
		t:            t,
		models:       []map[string]any{generationModel("gemini-1.5-pro")},
		generateText: "the video looks fine to me",
	}
	c, localPath := newTestClient(t, backend, nil)

	_, err := classify(t, c, localPath, nil)
	if !domain.IsKind(err, domain.ErrMalformedVerdict) {
		t.Fatalf("expected ErrMalformedVerdict, got %v", err)
	}
}

func TestClassifyFileCleanupFailureIsSwallowed(t *testing.T) {
	backend := &fakeBackend{
		t:            t,
		models:       []map[string]any{generationModel("gemini-1.5-pro")},
		generateText: `{"isSafe": true, "reason": "ok", "timestamp": null}`,
		deleteStatus: http.StatusInternalServerError,
	}
	c, localPath := newTestClient(t, backend, nil)

	verdict, err := classify(t, c, localPath, nil)
	if err != nil {
		t.Fatalf("cleanup failure must not fail classification: %v", err)
	}
	if !verdict.IsSafe {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if backend.deleteCalls != 1 {
		t.Fatalf("expected delete attempt, got %d", backend.deleteCalls)
	}
}

func TestCandidateModelsExplicitConfigurationWins(t *testing.T) {
	c := New(Config{APIKey: "k", Model: "models/gemini-2.0-flash"}, nil)
	got := c.candidateModels(context.Background())
	if len(got) != 1 || got[0] != "gemini-2.0-flash" {
		t.Fatalf("expected sole configured candidate, got %v", got)
	}
}

func TestPrioritizeVideoCapable(t *testing.T) {
	got := prioritizeVideoCapable([]string{"text-bison", "gemini-1.5-pro", "embedding-001", "chat-flash"})
	want := []string{"gemini-1.5-pro", "chat-flash", "text-bison", "embedding-001"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("prioritizeVideoCapable = %v, want %v", got, want)
		}
	}
}

func TestParseVerdictNullTimestamp(t *testing.T) {
	verdict, err := parseVerdict("```json\n{\"isSafe\": false, \"reason\": \"r\", \"timestamp\": null}\n```")
	if err != nil {
		t.Fatalf("parseVerdict() error = %v", err)
	}
	if verdict.Timestamp != "" {
		t.Fatalf("null timestamp must decode empty, got %q", verdict.Timestamp)
	}
}
