package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const denyAllRego = `package ideaforge.policy

import rego.v1

deny contains "frozen"
`

func startWatcher(t *testing.T, path string) <-chan *Engine {
	t.Helper()
	reloads := make(chan *Engine, 4)
	w, err := NewWatcher(EngineConfig{Path: path}, func(e *Engine) { reloads <- e })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return reloads
}

func waitReload(t *testing.T, reloads <-chan *Engine) *Engine {
	t.Helper()
	select {
	case e := <-reloads:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
		return nil
	}
}

func TestWatcher_ReloadsDirectory(t *testing.T) {
	dir := t.TempDir()
	reloads := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "freeze.rego"), []byte(denyAllRego), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := waitReload(t, reloads)
	if engine.PolicyCount() != 1 {
		t.Fatalf("PolicyCount() = %d, want 1", engine.PolicyCount())
	}
	decision, err := engine.EvaluateStage(context.Background(), &StageInput{Stage: 1, Total: 1, Succeeded: 1})
	if err != nil {
		t.Fatalf("EvaluateStage() error = %v", err)
	}
	if !decision.IsDenied() {
		t.Errorf("Result = %q, want deny", decision.Result)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	reloads := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloads:
		t.Fatal("reloaded after a non-rego change")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_KeepsPreviousOnCompileError(t *testing.T) {
	dir := t.TempDir()
	reloads := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package ideaforge.policy\ndeny contains {"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloads:
		t.Fatal("broken policy was handed out")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "advance.rego")
	if err := os.WriteFile(path, []byte(minSuccessRego), 0o644); err != nil {
		t.Fatal(err)
	}
	reloads := startWatcher(t, path)

	if err := os.WriteFile(path, []byte(denyAllRego), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := waitReload(t, reloads)
	if got := engine.PolicyNames(); len(got) != 1 || got[0] != "advance" {
		t.Errorf("PolicyNames() = %v", got)
	}
}

func TestNewWatcher_MissingPath(t *testing.T) {
	if _, err := NewWatcher(EngineConfig{Path: filepath.Join(t.TempDir(), "absent")}, func(*Engine) {}); err == nil {
		t.Fatal("expected error for missing path")
	}
}
