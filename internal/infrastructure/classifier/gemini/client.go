package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
	"github.com/pulsehq/pulse-backend/internal/core/ports"
	"github.com/pulsehq/pulse-backend/internal/infrastructure/resilience"
)

// Known video-capable model names, tried in order when neither an explicit
// model nor discovery yields candidates.
var defaultModelCandidates = []string{
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-pro",
	"gemini-1.5-pro-latest",
	"gemini-1.5-flash-latest",
}

type Config struct {
	BaseURL string
	APIKey  string

	// Model, when set, is the sole candidate; discovery is skipped.
	Model string

	PollInterval    time.Duration
	PollMaxAttempts int
}

func (c Config) withDefaults() Config {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 2 * time.Second
	}
	if out.PollMaxAttempts <= 0 {
		out.PollMaxAttempts = 60
	}
	return out
}

// Client talks to the Gemini-style file+generation API: upload a video file,
// wait for remote processing, run the safety prompt against an ordered list of
// candidate models, parse the structured verdict, delete the remote file.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	return &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

func (c *Client) ClassifyFile(ctx context.Context, req ports.ClassifyRequest) (domain.Verdict, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.Verdict{}, domain.WrapError(domain.ErrNoCredential, "classify file", fmt.Errorf("api key is empty"))
	}

	remote, err := c.uploadFile(ctx, req.LocalPath, req.MimeType, req.DisplayName)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("upload file: %w", err)
	}
	reportPhase(req, ports.PhaseSubmitted)

	ready, err := c.awaitFileActive(ctx, remote)
	if err != nil {
		return domain.Verdict{}, err
	}
	reportPhase(req, ports.PhaseFileReady)

	raw, err := c.generateVerdict(ctx, ready)
	if err != nil {
		return domain.Verdict{}, err
	}
	reportPhase(req, ports.PhaseGenerated)

	verdict, err := parseVerdict(raw)
	if err != nil {
		return domain.Verdict{}, err
	}

	// Remote cleanup is best effort; the verdict is already in hand.
	if err := c.deleteFile(ctx, remote.Name); err != nil {
		slog.Warn("delete remote classifier file", "file", remote.Name, "error", err)
	}

	return verdict, nil
}

// awaitFileActive polls the remote file on a fixed interval until it leaves
// the processing state or the attempt ceiling is reached.
func (c *Client) awaitFileActive(ctx context.Context, remote remoteFile) (remoteFile, error) {
	current := remote
	for attempt := 0; ; attempt++ {
		switch current.State {
		case fileStateFailed:
			return remoteFile{}, domain.WrapError(domain.ErrRemoteProcessing, "await file", fmt.Errorf("file %s reached FAILED state", current.Name))
		case fileStateProcessing:
			if attempt >= c.cfg.PollMaxAttempts {
				return remoteFile{}, domain.WrapError(domain.ErrPollTimeout, "await file",
					fmt.Errorf("file %s still processing after %d polls", current.Name, attempt))
			}
		default:
			return current, nil
		}

		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return remoteFile{}, ctx.Err()
		case <-timer.C:
		}

		refreshed, err := c.getFile(ctx, current.Name)
		if err != nil {
			return remoteFile{}, fmt.Errorf("poll file state: %w", err)
		}
		current = refreshed
	}
}

// generateVerdict walks the candidate models in order and returns the first
// non-empty response. Every candidate failure is recorded; exhausting the list
// raises an aggregate error naming the last failure and all candidates.
func (c *Client) generateVerdict(ctx context.Context, remote remoteFile) (string, error) {
	candidates := c.candidateModels(ctx)

	var lastErr error
	for _, model := range candidates {
		raw, err := c.generateContent(ctx, model, remote)
		if err != nil {
			lastErr = err
			slog.Warn("candidate model failed", "model", model, "error", firstLine(err.Error()))
			continue
		}
		if strings.TrimSpace(raw) == "" {
			lastErr = fmt.Errorf("model %s returned empty response", model)
			continue
		}
		slog.Info("candidate model succeeded", "model", model)
		return raw, nil
	}

	return "", domain.WrapError(domain.ErrAllModelsFailed, "generate verdict",
		fmt.Errorf("last error: %v; candidates: %s", lastErr, strings.Join(candidates, ", ")))
}

// candidateModels builds the ordered model list: explicit configuration wins,
// then discovery filtered to generation-capable models with video-capable
// families first, then the hardcoded defaults.
func (c *Client) candidateModels(ctx context.Context) []string {
	if c.cfg.Model != "" {
		return []string{strings.TrimPrefix(c.cfg.Model, "models/")}
	}

	discovered, err := c.listModels(ctx)
	if err != nil {
		slog.Warn("model discovery failed, using defaults", "error", firstLine(err.Error()))
		return defaultModelCandidates
	}
	if len(discovered) == 0 {
		return defaultModelCandidates
	}
	return prioritizeVideoCapable(discovered)
}

func prioritizeVideoCapable(models []string) []string {
	var video, rest []string
	for _, m := range models {
		if strings.Contains(m, "1.5") || strings.Contains(m, "pro") || strings.Contains(m, "flash") {
			video = append(video, m)
		} else {
			rest = append(rest, m)
		}
	}
	return append(video, rest...)
}

// parseVerdict strips markdown code fences before decoding the structured
// verdict; anything undecodable is a malformed-verdict error.
func parseVerdict(raw string) (domain.Verdict, error) {
	clean := stripCodeFences(raw)

	var payload struct {
		IsSafe    bool    `json:"isSafe"`
		Reason    string  `json:"reason"`
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return domain.Verdict{}, domain.WrapError(domain.ErrMalformedVerdict, "parse verdict", err)
	}

	verdict := domain.Verdict{IsSafe: payload.IsSafe, Reason: payload.Reason}
	if payload.Timestamp != nil {
		verdict.Timestamp = *payload.Timestamp
	}
	return verdict, nil
}

func stripCodeFences(raw string) string {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}

func reportPhase(req ports.ClassifyRequest, phase ports.ClassifyPhase) {
	if req.OnPhase != nil {
		req.OnPhase(phase)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
