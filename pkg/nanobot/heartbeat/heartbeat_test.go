package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestBeatUsesDefaultPrompt(t *testing.T) {
	var got string
	s := NewService(func(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
		got = content
		if sessionKey != "heartbeat" || channel != "system" {
			t.Errorf("session = %q channel = %q", sessionKey, channel)
		}
		return "ok", nil
	}, t.TempDir(), time.Hour)

	s.beat(context.Background())
	if got != defaultPrompt {
		t.Errorf("prompt = %q", got)
	}
}

func TestBeatPrefersWorkspacePrompt(t *testing.T) {
	workspace := t.TempDir()
	custom := "Check the greenhouse sensors."
	if err := os.WriteFile(filepath.Join(workspace, "HEARTBEAT.md"), []byte(custom+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var got string
	s := NewService(func(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
		got = content
		return "ok", nil
	}, workspace, time.Hour)

	s.beat(context.Background())
	if got != custom {
		t.Errorf("prompt = %q, want workspace override", got)
	}
}

func TestBeatSkipsWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var runs int

	s := NewService(func(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		close(started)
		<-release
		return "ok", nil
	}, t.TempDir(), time.Hour)

	go s.beat(context.Background())
	<-started

	// Overlapping tick is dropped.
	s.beat(context.Background())
	close(release)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
}

func TestStartStop(t *testing.T) {
	s := NewService(func(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
		return "ok", nil
	}, t.TempDir(), time.Hour)

	s.Start(context.Background())
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
