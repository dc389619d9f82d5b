package realtime

import (
	"github.com/pulsehq/pulse-backend/internal/core/domain"
)

// EventVideoStatusUpdate is the single event name clients subscribe to for
// processing lifecycle updates.
const EventVideoStatusUpdate = "video_status_update"

// StatusPayload is the wire shape of one lifecycle update.
type StatusPayload struct {
	VideoID     string                     `json:"videoId"`
	Status      string                     `json:"status"`
	Progress    int                        `json:"progress"`
	Sensitivity string                     `json:"sensitivity,omitempty"`
	Details     *domain.SensitivityDetails `json:"details,omitempty"`
	Source      string                     `json:"source,omitempty"`
}

// Notifier adapts the hub to the processing lifecycle port. Events are scoped
// to the tenant owning the video.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) ProcessingStarted(tenantID, videoID string, progress int) {
	n.publish(tenantID, StatusPayload{
		VideoID:  videoID,
		Status:   string(domain.ProcessingInProgress),
		Progress: progress,
	})
}

func (n *Notifier) ProcessingProgress(tenantID, videoID string, progress int) {
	n.publish(tenantID, StatusPayload{
		VideoID:  videoID,
		Status:   string(domain.ProcessingInProgress),
		Progress: progress,
	})
}

func (n *Notifier) ProcessingCompleted(tenantID string, video *domain.Video) {
	n.publish(tenantID, StatusPayload{
		VideoID:     video.ID,
		Status:      string(video.ProcessingStatus),
		Progress:    100,
		Sensitivity: string(video.SensitivityStatus),
		Details:     video.SensitivityDetails,
		Source:      string(video.VerdictSource),
	})
}

func (n *Notifier) publish(tenantID string, payload StatusPayload) {
	n.hub.Broadcast(tenantID, Message{
		Event: EventVideoStatusUpdate,
		Data:  payload,
	})
}
