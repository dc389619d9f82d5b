package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
	"github.com/pulsehq/pulse-backend/internal/core/ports"
)

type IngestVideoUseCase struct {
	repo  ports.VideoRepository
	store ports.ArtifactStore
	queue ports.MessageQueue
}

func NewIngestVideoUseCase(
	repo ports.VideoRepository,
	store ports.ArtifactStore,
	queue ports.MessageQueue,
) *IngestVideoUseCase {
	return &IngestVideoUseCase{
		repo:  repo,
		store: store,
		queue: queue,
	}
}

// Upload stores the artifact, creates the pending record, and fires the
// processing event. The record leaves here in status=pending; the worker owns
// every transition after that.
func (uc *IngestVideoUseCase) Upload(
	ctx context.Context,
	principal domain.Principal,
	req ports.UploadRequest,
) (*domain.Video, error) {
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload video", fmt.Errorf("empty body"))
	}
	if principal.Role == domain.RoleViewer {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload video", fmt.Errorf("role %q cannot upload", principal.Role))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	ref, err := uc.store.Save(ctx, storageKey, req.Body)
	if err != nil {
		return nil, fmt.Errorf("save to artifact store: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.Filename
	}

	video := &domain.Video{
		ID:                id,
		Title:             title,
		Description:       req.Description,
		UploadedBy:        principal.UserID,
		TenantID:          principal.TenantID,
		StorageRef:        ref,
		MimeType:          req.MimeType,
		SizeBytes:         req.SizeBytes,
		ProcessingStatus:  domain.ProcessingPending,
		SensitivityStatus: domain.SensitivityPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := uc.repo.Create(ctx, video); err != nil {
		if removeErr := uc.store.Remove(ctx, ref); removeErr != nil {
			slog.Warn("orphaned artifact after failed create", "ref", ref, "error", removeErr)
		}
		return nil, fmt.Errorf("create video record: %w", err)
	}

	if err := uc.queue.PublishVideoUploaded(ctx, video.ID); err != nil {
		// Without the event the record would sit in pending forever; undo the
		// upload instead of leaving an unprocessable record behind.
		if delErr := uc.repo.Delete(ctx, video.ID); delErr != nil {
			slog.Warn("orphaned record after failed publish", "video_id", video.ID, "error", delErr)
		}
		if removeErr := uc.store.Remove(ctx, ref); removeErr != nil {
			slog.Warn("orphaned artifact after failed publish", "ref", ref, "error", removeErr)
		}
		return nil, fmt.Errorf("publish upload event: %w", err)
	}

	return video, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "video.bin"
	}
	return base
}
