package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
	"github.com/pulsehq/pulse-backend/internal/core/ports"
)

// CatalogUseCase covers the thin read/edit surface around the pipeline:
// role-filtered listing, metadata edits, deletion, and the view counter.
type CatalogUseCase struct {
	repo  ports.VideoRepository
	store ports.ArtifactStore
}

func NewCatalogUseCase(repo ports.VideoRepository, store ports.ArtifactStore) *CatalogUseCase {
	return &CatalogUseCase{repo: repo, store: store}
}

// List applies the caller's role before the repository filter: viewers never
// see flagged or unfinished records, editors only their own uploads.
func (uc *CatalogUseCase) List(ctx context.Context, principal domain.Principal, filter domain.VideoFilter) ([]domain.Video, error) {
	filter.TenantID = principal.TenantID

	switch principal.Role {
	case domain.RoleViewer:
		filter.ExcludeFlagged = true
		filter.CompletedOnly = true
	case domain.RoleEditor:
		filter.UploadedBy = principal.UserID
	}

	videos, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

func (uc *CatalogUseCase) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	video, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch video by id: %w", err)
	}
	return video, nil
}

// UpdateMeta edits title/description only; processing fields are owned by the
// orchestrator and never touched here.
func (uc *CatalogUseCase) UpdateMeta(ctx context.Context, principal domain.Principal, id, title, description string) (*domain.Video, error) {
	video, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch video by id: %w", err)
	}
	if err := authorizeOwner(principal, video); err != nil {
		return nil, err
	}

	if strings.TrimSpace(title) == "" {
		title = video.Title
	}
	if description == "" {
		description = video.Description
	}

	if err := uc.repo.UpdateMeta(ctx, id, title, description); err != nil {
		return nil, fmt.Errorf("update video meta: %w", err)
	}

	video.Title = title
	video.Description = description
	return video, nil
}

// Delete removes the record and releases the stored artifact. Artifact removal
// failures are logged, not propagated: the record is gone either way.
func (uc *CatalogUseCase) Delete(ctx context.Context, principal domain.Principal, id string) error {
	video, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch video by id: %w", err)
	}
	if err := authorizeOwner(principal, video); err != nil {
		return err
	}

	if err := uc.store.Remove(ctx, video.StorageRef); err != nil {
		slog.Warn("release artifact on delete", "video_id", id, "ref", video.StorageRef, "error", err)
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete video record: %w", err)
	}
	return nil
}

// RecordView bumps the monotonic view counter. One increment per view event,
// no dedup.
func (uc *CatalogUseCase) RecordView(ctx context.Context, id string) (int64, error) {
	views, err := uc.repo.IncrementViews(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return views, nil
}

func authorizeOwner(principal domain.Principal, video *domain.Video) error {
	if principal.Role == domain.RoleAdmin {
		return nil
	}
	if video.UploadedBy == principal.UserID {
		return nil
	}
	return domain.WrapError(domain.ErrUnauthorized, "modify video", fmt.Errorf("user %s does not own video %s", principal.UserID, video.ID))
}
