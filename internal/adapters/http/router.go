package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
	"github.com/pulsehq/pulse-backend/internal/core/ports"
	"github.com/pulsehq/pulse-backend/internal/core/usecase"
	"github.com/pulsehq/pulse-backend/internal/observability/metrics"
	"github.com/pulsehq/pulse-backend/internal/realtime"
)

const serviceName = "pulse-api"

// Traffic bounds the request stream ahead of the handlers. Zero values
// disable the corresponding gate.
type Traffic struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	ingestUC  *usecase.IngestVideoUseCase
	catalogUC *usecase.CatalogUseCase
	store     ports.ArtifactStore
	hub       *realtime.Hub
	metrics   *metrics.HTTPServerMetrics
	traffic   Traffic
	upgrader  websocket.Upgrader
}

func NewRouter(
	ingestUC *usecase.IngestVideoUseCase,
	catalogUC *usecase.CatalogUseCase,
	store ports.ArtifactStore,
	hub *realtime.Hub,
	serverMetrics *metrics.HTTPServerMetrics,
	traffic Traffic,
) *Router {
	return &Router{
		ingestUC:  ingestUC,
		catalogUC: catalogUC,
		store:     store,
		hub:       hub,
		metrics:   serverMetrics,
		traffic:   traffic,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("POST /v1/videos", rt.protected(rt.uploadVideo))
	mux.Handle("GET /v1/videos", rt.protected(rt.listVideos))
	mux.Handle("GET /v1/videos/{id}", rt.protected(rt.getVideo))
	mux.Handle("PUT /v1/videos/{id}", rt.protected(rt.updateVideo))
	mux.Handle("DELETE /v1/videos/{id}", rt.protected(rt.deleteVideo))
	mux.Handle("POST /v1/videos/{id}/views", rt.protected(rt.recordView))
	mux.Handle("GET /v1/videos/{id}/stream", rt.protected(rt.streamVideo))
	mux.Handle("GET /v1/events", rt.protected(rt.subscribeEvents))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.traffic.MaxInFlight, rt.traffic.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) protected(h http.HandlerFunc) http.Handler {
	return principalMiddleware(h)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadVideo(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	video, err := rt.ingestUC.Upload(r.Context(), principal, ports.UploadRequest{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Filename:    fileHeader.Filename,
		MimeType:    fileHeader.Header.Get("Content-Type"),
		SizeBytes:   fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, video.SizeBytes)
	}
	writeJSON(w, http.StatusAccepted, video)
}

func (rt *Router) listVideos(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	filter := domain.VideoFilter{
		ProcessingStatus:  domain.ProcessingStatus(r.URL.Query().Get("processing_status")),
		SensitivityStatus: domain.SensitivityStatus(r.URL.Query().Get("sensitivity_status")),
	}

	videos, err := rt.catalogUC.List(r.Context(), principal, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if videos == nil {
		videos = []domain.Video{}
	}
	writeJSON(w, http.StatusOK, videos)
}

func (rt *Router) getVideo(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	video, err := rt.fetchTenantVideo(r, principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (rt *Router) updateVideo(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	if _, err := rt.fetchTenantVideo(r, principal); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	video, err := rt.catalogUC.UpdateMeta(r.Context(), principal, r.PathValue("id"), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (rt *Router) deleteVideo(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	if _, err := rt.fetchTenantVideo(r, principal); err != nil {
		writeError(w, err)
		return
	}

	if err := rt.catalogUC.Delete(r.Context(), principal, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) recordView(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	if _, err := rt.fetchTenantVideo(r, principal); err != nil {
		writeError(w, err)
		return
	}

	views, err := rt.catalogUC.RecordView(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordViewEvent(serviceName)
	}
	writeJSON(w, http.StatusOK, map[string]int64{"views": views})
}

// streamVideo serves local artifacts directly and redirects to a presigned
// URL for remote stores.
func (rt *Router) streamVideo(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	video, err := rt.fetchTenantVideo(r, principal)
	if err != nil {
		writeError(w, err)
		return
	}

	if path, ok := rt.store.LocalPath(video.StorageRef); ok {
		if rt.metrics != nil {
			rt.metrics.RecordStreamRequest(serviceName, "local")
		}
		w.Header().Set("Content-Type", video.MimeType)
		http.ServeFile(w, r, path)
		return
	}

	url, err := rt.store.PlaybackURL(r.Context(), video.StorageRef)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordStreamRequest(serviceName, "presigned")
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (rt *Router) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())

	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := realtime.NewClient(rt.hub, conn, principal.TenantID)
	if rt.metrics != nil {
		rt.metrics.ClientConnected()
		client.OnClose(rt.metrics.ClientDisconnected)
	}
	client.Start()
}

// fetchTenantVideo loads the path video and hides records of other tenants
// behind not-found. Viewers see only completed, unflagged records, the same
// rule the listing applies.
func (rt *Router) fetchTenantVideo(r *http.Request, principal domain.Principal) (*domain.Video, error) {
	video, err := rt.catalogUC.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if video.TenantID != principal.TenantID {
		return nil, fmt.Errorf("video %s: %w", video.ID, domain.ErrVideoNotFound)
	}
	if principal.Role == domain.RoleViewer &&
		(video.ProcessingStatus != domain.ProcessingCompleted || video.SensitivityStatus == domain.SensitivityFlagged) {
		return nil, fmt.Errorf("video %s: %w", video.ID, domain.ErrVideoNotFound)
	}
	return video, nil
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
