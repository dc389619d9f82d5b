package ports

import (
	"context"
	"io"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
)

// VideoRepository persists and reads video records.
type VideoRepository interface {
	Create(ctx context.Context, video *domain.Video) error
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	List(ctx context.Context, filter domain.VideoFilter) ([]domain.Video, error)

	// ClaimProcessing moves a record from pending to processing. Exactly one
	// caller wins; every other concurrent claim gets ErrAlreadyClaimed.
	ClaimProcessing(ctx context.Context, id string) error

	// SaveOutcome moves a processing record to completed and persists the
	// verdict, its provenance, and sensitivity details for flagged results.
	SaveOutcome(ctx context.Context, id string, outcome domain.Outcome) error

	// MarkFailed is the terminal escape hatch for records whose outcome could
	// not be persisted.
	MarkFailed(ctx context.Context, id string, errMessage string) error

	UpdateMeta(ctx context.Context, id, title, description string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// ArtifactStore stores raw video bytes and resolves them for playback and for
// the classifier, which needs a local file.
type ArtifactStore interface {
	// Save writes the uploaded bytes under key and returns the storage ref
	// recorded on the video (a local key or a remote URL).
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error

	// LocalPath resolves ref to a readable local filesystem path when the
	// store keeps artifacts on local disk.
	LocalPath(ref string) (string, bool)

	// PlaybackURL resolves ref to a fetchable URL for remote stores.
	PlaybackURL(ctx context.Context, ref string) (string, error)

	// MaterializeTo streams the referenced artifact into localPath.
	MaterializeTo(ctx context.Context, ref, localPath string) error
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishVideoUploaded(ctx context.Context, videoID string) error
	SubscribeVideoUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// ClassifyPhase marks coarse milestones inside one classification call.
type ClassifyPhase int

const (
	PhaseSubmitted ClassifyPhase = iota
	PhaseFileReady
	PhaseGenerated
)

// ClassifyRequest describes one local video file to evaluate. OnPhase, when
// set, is invoked as each milestone completes; implementations must tolerate a
// nil callback.
type ClassifyRequest struct {
	LocalPath   string
	MimeType    string
	DisplayName string
	OnPhase     func(ClassifyPhase)
}

// SafetyClassifier submits one video for content-safety evaluation and returns
// a normalized verdict.
type SafetyClassifier interface {
	ClassifyFile(ctx context.Context, req ClassifyRequest) (domain.Verdict, error)
}

// LifecycleNotifier fans processing lifecycle events out to clients subscribed
// to the owning tenant. Delivery is at-most-once, best effort.
type LifecycleNotifier interface {
	ProcessingStarted(tenantID, videoID string, progress int)
	ProcessingProgress(tenantID, videoID string, progress int)
	ProcessingCompleted(tenantID string, video *domain.Video)
}
