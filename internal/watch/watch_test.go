package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/r8core/r8/internal/watch"
)

func TestSessionWaitReportsWatchedFileChange(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "rules.pro")
	if err := os.WriteFile(target, []byte("-keep class a.b.C"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := watch.NewSession([]string{target})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	done := make(chan struct{})
	var gotPath string
	var waitErr error
	go func() {
		gotPath, waitErr = s.Wait()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(target, []byte("-keep class a.b.D"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a change notification")
	}

	if waitErr != nil {
		t.Fatalf("Wait: %v", waitErr)
	}
	if filepath.Clean(gotPath) != filepath.Clean(target) {
		t.Errorf("Wait() path = %q, want %q", gotPath, target)
	}
}

func TestSessionIgnoresUnwatchedSiblingFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "rules.pro")
	sibling := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(target, []byte("-keep class a.b.C"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := watch.NewSession([]string{target})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	done := make(chan struct{})
	var gotPath string
	go func() {
		gotPath, _ = s.Wait()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(sibling, []byte("irrelevant"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(target, []byte("-keep class a.b.E"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a change notification")
	}
	if filepath.Clean(gotPath) != filepath.Clean(target) {
		t.Errorf("Wait() path = %q, want %q (sibling file event should have been ignored)", gotPath, target)
	}
}
