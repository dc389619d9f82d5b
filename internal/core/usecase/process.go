package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
	"github.com/pulsehq/pulse-backend/internal/core/ports"
)

// Progress milestones emitted over the lifecycle of one video.
const (
	progressStarted   = 10
	progressSubmitted = 30
	progressFileReady = 50
	progressGenerated = 80
	progressDone      = 100
)

const (
	simulatedSafeProbability = 0.7
	simulatedFlagReason      = "Simulated AI Flag: Inappropriate content detected (Fallback Mode)"
	simulatedFlagTimestamp   = "00:15"
	missingTimestampSentinel = "N/A"
)

// ProcessVideoUseCase drives one video from pending to a terminal state. Every
// classification-path error collapses into the simulated-verdict fallback, so
// the record never sticks in processing; failed is reserved for outcomes that
// could not be persisted.
type ProcessVideoUseCase struct {
	repo       ports.VideoRepository
	store      ports.ArtifactStore
	classifier ports.SafetyClassifier
	notifier   ports.LifecycleNotifier
	scratchDir string

	mu  sync.Mutex
	rng *rand.Rand
}

func NewProcessVideoUseCase(
	repo ports.VideoRepository,
	store ports.ArtifactStore,
	classifier ports.SafetyClassifier,
	notifier ports.LifecycleNotifier,
	scratchDir string,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		repo:       repo,
		store:      store,
		classifier: classifier,
		notifier:   notifier,
		scratchDir: scratchDir,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRandSource replaces the fallback randomness source. Tests use it to make
// the simulated verdict deterministic.
func (uc *ProcessVideoUseCase) WithRandSource(src rand.Source) *ProcessVideoUseCase {
	uc.rng = rand.New(src)
	return uc
}

func (uc *ProcessVideoUseCase) ProcessByID(ctx context.Context, videoID string) error {
	video, err := uc.repo.GetByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("fetch video by id: %w", err)
	}

	if err := uc.repo.ClaimProcessing(ctx, videoID); err != nil {
		if domain.IsKind(err, domain.ErrAlreadyClaimed) {
			slog.Info("skipping duplicate processing invocation", "video_id", videoID)
			return nil
		}
		return fmt.Errorf("claim processing: %w", err)
	}

	uc.notifier.ProcessingStarted(video.TenantID, video.ID, progressStarted)

	outcome := uc.classifyWithFallback(ctx, video)

	if err := uc.repo.SaveOutcome(ctx, video.ID, outcome); err != nil {
		if failErr := uc.repo.MarkFailed(ctx, video.ID, err.Error()); failErr != nil {
			return fmt.Errorf("save outcome: %w; mark failed: %v", err, failErr)
		}
		return fmt.Errorf("save outcome: %w", err)
	}

	applyOutcome(video, outcome)
	uc.notifier.ProcessingCompleted(video.TenantID, video)
	return nil
}

// classifyWithFallback never returns an error: any failure in materialization,
// submission, polling, or parsing degrades to a simulated verdict.
func (uc *ProcessVideoUseCase) classifyWithFallback(ctx context.Context, video *domain.Video) domain.Outcome {
	verdict, err := uc.classifyReal(ctx, video)
	if err == nil {
		return domain.Outcome{Verdict: normalizeVerdict(verdict), Source: domain.SourceModel}
	}

	slog.Warn("classification failed, applying simulated verdict",
		"video_id", video.ID,
		"error", err,
	)
	return uc.simulatedOutcome()
}

func (uc *ProcessVideoUseCase) classifyReal(ctx context.Context, video *domain.Video) (domain.Verdict, error) {
	localPath, scratch, err := uc.materialize(ctx, video)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("materialize artifact: %w", err)
	}
	if scratch {
		defer uc.removeScratch(localPath)
	}

	verdict, err := uc.classifier.ClassifyFile(ctx, ports.ClassifyRequest{
		LocalPath:   localPath,
		MimeType:    video.MimeType,
		DisplayName: video.Title,
		OnPhase:     uc.phaseReporter(video),
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("classify video: %w", err)
	}
	return verdict, nil
}

// materialize resolves the artifact to a readable local path, downloading a
// remote artifact into the scratch directory when needed.
func (uc *ProcessVideoUseCase) materialize(ctx context.Context, video *domain.Video) (string, bool, error) {
	if path, ok := uc.store.LocalPath(video.StorageRef); ok {
		return path, false, nil
	}

	if err := os.MkdirAll(uc.scratchDir, 0o755); err != nil {
		return "", false, fmt.Errorf("create scratch dir: %w", err)
	}

	scratchPath := filepath.Join(uc.scratchDir, scratchFilename(video.ID, video.Title))
	if err := uc.store.MaterializeTo(ctx, video.StorageRef, scratchPath); err != nil {
		// A partial download may exist; clean it up before reporting.
		uc.removeScratch(scratchPath)
		return "", false, fmt.Errorf("download remote artifact: %w", err)
	}
	return scratchPath, true, nil
}

func (uc *ProcessVideoUseCase) removeScratch(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove scratch file", "path", path, "error", err)
	}
}

func (uc *ProcessVideoUseCase) phaseReporter(video *domain.Video) func(ports.ClassifyPhase) {
	return func(phase ports.ClassifyPhase) {
		progress := 0
		switch phase {
		case ports.PhaseSubmitted:
			progress = progressSubmitted
		case ports.PhaseFileReady:
			progress = progressFileReady
		case ports.PhaseGenerated:
			progress = progressGenerated
		default:
			return
		}
		uc.notifier.ProcessingProgress(video.TenantID, video.ID, progress)
	}
}

func (uc *ProcessVideoUseCase) simulatedOutcome() domain.Outcome {
	uc.mu.Lock()
	safe := uc.rng.Float64() < simulatedSafeProbability
	uc.mu.Unlock()

	verdict := domain.Verdict{IsSafe: safe}
	if !safe {
		verdict.Reason = simulatedFlagReason
		verdict.Timestamp = simulatedFlagTimestamp
	}
	return domain.Outcome{Verdict: verdict, Source: domain.SourceSimulated}
}

func normalizeVerdict(v domain.Verdict) domain.Verdict {
	if !v.IsSafe && strings.TrimSpace(v.Timestamp) == "" {
		v.Timestamp = missingTimestampSentinel
	}
	return v
}

func applyOutcome(video *domain.Video, outcome domain.Outcome) {
	video.ProcessingStatus = domain.ProcessingCompleted
	video.VerdictSource = outcome.Source
	if outcome.Verdict.IsSafe {
		video.SensitivityStatus = domain.SensitivitySafe
		video.SensitivityDetails = nil
		return
	}
	video.SensitivityStatus = domain.SensitivityFlagged
	video.SensitivityDetails = &domain.SensitivityDetails{
		Reason:    outcome.Verdict.Reason,
		Timestamp: outcome.Verdict.Timestamp,
	}
}

// scratchFilename namespaces a scratch file by video id and strips every path
// separator from the display name so the result cannot escape the scratch
// directory.
func scratchFilename(videoID, name string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, name)
	safe = sanitizeFilename(safe)
	return fmt.Sprintf("scratch-%d-%s-%s.mp4", time.Now().UnixNano(), videoID, safe)
}
