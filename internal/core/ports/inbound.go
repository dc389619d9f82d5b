package ports

import (
	"context"
	"io"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
)

// UploadRequest carries everything the ingestor needs from one multipart upload.
type UploadRequest struct {
	Title       string
	Description string
	Filename    string
	MimeType    string
	SizeBytes   int64
	Body        io.Reader
}

// VideoIngestor is the inbound contract for video upload orchestration.
type VideoIngestor interface {
	Upload(ctx context.Context, principal domain.Principal, req UploadRequest) (*domain.Video, error)
}

// VideoProcessor is the inbound contract for asynchronous video processing.
type VideoProcessor interface {
	ProcessByID(ctx context.Context, videoID string) error
}

// VideoCatalog is the inbound contract for catalog reads, owner edits and
// view counting.
type VideoCatalog interface {
	List(ctx context.Context, principal domain.Principal, filter domain.VideoFilter) ([]domain.Video, error)
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	UpdateMeta(ctx context.Context, principal domain.Principal, id, title, description string) (*domain.Video, error)
	Delete(ctx context.Context, principal domain.Principal, id string) error
	RecordView(ctx context.Context, id string) (int64, error)
}
