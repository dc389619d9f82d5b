package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/pulsehq/pulse-backend/internal/core/domain"
)

func newTestClient(hub *Hub, tenantID string) *Client {
	return &Client{
		tenantID: tenantID,
		hub:      hub,
		send:     make(chan Message, 4),
	}
}

func TestBroadcastIsTenantScoped(t *testing.T) {
	hub := NewHub()
	tenantA := newTestClient(hub, "tenant-a")
	tenantB := newTestClient(hub, "tenant-b")
	hub.Register(tenantA)
	hub.Register(tenantB)

	hub.Broadcast("tenant-a", Message{Event: EventVideoStatusUpdate, Data: "x"})

	select {
	case msg := <-tenantA.send:
		if msg.Event != EventVideoStatusUpdate {
			t.Fatalf("event = %q", msg.Event)
		}
	default:
		t.Fatalf("tenant-a client received nothing")
	}

	select {
	case msg := <-tenantB.send:
		t.Fatalf("tenant-b client must not receive tenant-a events, got %+v", msg)
	default:
	}
}

func TestBroadcastToEmptyTenantIsNoOp(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("nobody-home", Message{Event: EventVideoStatusUpdate})
	if n := hub.ClientCount("nobody-home"); n != 0 {
		t.Fatalf("client count = %d", n)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub()
	slow := &Client{tenantID: "tenant-a", hub: hub, send: make(chan Message, 1)}
	hub.Register(slow)

	hub.Broadcast("tenant-a", Message{Event: "one"})
	hub.Broadcast("tenant-a", Message{Event: "two"})

	if n := hub.ClientCount("tenant-a"); n != 0 {
		t.Fatalf("stalled client still registered, count = %d", n)
	}
	// Channel is closed after the drop.
	if _, ok := <-slow.send; !ok {
		t.Fatalf("expected buffered message before close")
	}
	if _, ok := <-slow.send; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "tenant-a")
	hub.Register(client)
	hub.Unregister(client)

	if _, ok := <-client.send; ok {
		t.Fatalf("expected closed channel after unregister")
	}
	if n := hub.ClientCount("tenant-a"); n != 0 {
		t.Fatalf("client count = %d", n)
	}
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "tenant-a")
	hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}

	if _, ok := <-client.send; ok {
		t.Fatalf("expected closed channel after shutdown")
	}
}

func TestNotifierPayloadShapes(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "tenant-a")
	hub.Register(client)
	notifier := NewNotifier(hub)

	notifier.ProcessingProgress("tenant-a", "vid-1", 50)
	msg := <-client.send
	payload, ok := msg.Data.(StatusPayload)
	if !ok {
		t.Fatalf("payload type = %T", msg.Data)
	}
	if payload.VideoID != "vid-1" || payload.Status != "processing" || payload.Progress != 50 {
		t.Fatalf("payload = %+v", payload)
	}

	video := &domain.Video{
		ID:                "vid-1",
		ProcessingStatus:  domain.ProcessingCompleted,
		SensitivityStatus: domain.SensitivityFlagged,
		SensitivityDetails: &domain.SensitivityDetails{
			Reason:    "X",
			Timestamp: "00:12",
		},
		VerdictSource: domain.SourceModel,
	}
	notifier.ProcessingCompleted("tenant-a", video)
	msg = <-client.send
	payload = msg.Data.(StatusPayload)
	if payload.Status != "completed" || payload.Progress != 100 {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Sensitivity != "flagged" || payload.Details == nil || payload.Source != "model" {
		t.Fatalf("payload = %+v", payload)
	}
}
