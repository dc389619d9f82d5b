package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
)

// StatusPublisher is the queue side the worker publishes lifecycle events to.
type StatusPublisher interface {
	PublishVideoStatus(ctx context.Context, data []byte) error
}

// StatusSubscriber is the queue side an api instance consumes lifecycle
// events from.
type StatusSubscriber interface {
	SubscribeVideoStatus(ctx context.Context, handler func([]byte)) error
}

// statusEnvelope is the wire shape of one lifecycle event between worker and
// api processes. TenantID travels alongside the payload so the receiving hub
// can route without inspecting it.
type statusEnvelope struct {
	TenantID string        `json:"tenantId"`
	Payload  StatusPayload `json:"payload"`
}

// QueueNotifier implements the lifecycle notifier port for the worker
// process: events cross the queue and are fanned out by whichever api
// instance holds the tenant's websocket clients. Delivery is best effort;
// publish failures are logged and dropped.
type QueueNotifier struct {
	publisher StatusPublisher
}

func NewQueueNotifier(publisher StatusPublisher) *QueueNotifier {
	return &QueueNotifier{publisher: publisher}
}

func (n *QueueNotifier) ProcessingStarted(tenantID, videoID string, progress int) {
	n.publish(tenantID, StatusPayload{
		VideoID:  videoID,
		Status:   string(domain.ProcessingInProgress),
		Progress: progress,
	})
}

func (n *QueueNotifier) ProcessingProgress(tenantID, videoID string, progress int) {
	n.publish(tenantID, StatusPayload{
		VideoID:  videoID,
		Status:   string(domain.ProcessingInProgress),
		Progress: progress,
	})
}

func (n *QueueNotifier) ProcessingCompleted(tenantID string, video *domain.Video) {
	n.publish(tenantID, StatusPayload{
		VideoID:     video.ID,
		Status:      string(video.ProcessingStatus),
		Progress:    100,
		Sensitivity: string(video.SensitivityStatus),
		Details:     video.SensitivityDetails,
		Source:      string(video.VerdictSource),
	})
}

func (n *QueueNotifier) publish(tenantID string, payload StatusPayload) {
	data, err := json.Marshal(statusEnvelope{TenantID: tenantID, Payload: payload})
	if err != nil {
		slog.Warn("encode status event", "video_id", payload.VideoID, "error", err)
		return
	}
	if err := n.publisher.PublishVideoStatus(context.Background(), data); err != nil {
		slog.Warn("publish status event", "video_id", payload.VideoID, "error", err)
	}
}

// RunBridge feeds queue status events into the local hub until ctx ends.
func RunBridge(ctx context.Context, subscriber StatusSubscriber, hub *Hub) error {
	return subscriber.SubscribeVideoStatus(ctx, func(data []byte) {
		var envelope statusEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			slog.Warn("decode status event", "error", err)
			return
		}
		hub.Broadcast(envelope.TenantID, Message{
			Event: EventVideoStatusUpdate,
			Data:  envelope.Payload,
		})
	})
}
