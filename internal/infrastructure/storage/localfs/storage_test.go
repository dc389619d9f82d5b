package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveOpenRemoveRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	ref, err := s.Save(ctx, "vid-1_clip.mp4", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ref != "vid-1_clip.mp4" {
		t.Fatalf("ref = %q", ref)
	}

	rc, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "payload" {
		t.Fatalf("data = %q", data)
	}

	if err := s.Remove(ctx, ref); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Open(ctx, ref); err == nil {
		t.Fatalf("expected open to fail after remove")
	}
	// Removing twice stays quiet.
	if err := s.Remove(ctx, ref); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
}

func TestLocalPathResolvesAgainstBase(t *testing.T) {
	base := t.TempDir()
	s, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	path, ok := s.LocalPath("vid-1_clip.mp4")
	if !ok {
		t.Fatalf("expected local path support")
	}
	if path != filepath.Join(base, "vid-1_clip.mp4") {
		t.Fatalf("path = %q", path)
	}
}

func TestMaterializeToCopiesArtifact(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if _, err := s.Save(ctx, "key", strings.NewReader("bytes")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	target := filepath.Join(t.TempDir(), "scratch.mp4")
	if err := s.MaterializeTo(ctx, "key", target); err != nil {
		t.Fatalf("MaterializeTo() error = %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if string(data) != "bytes" {
		t.Fatalf("scratch data = %q", data)
	}
}
