package telemetry

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/executor"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/posthog/posthog-go"
)

type mockEnqueuer struct {
	mu     sync.Mutex
	events []posthog.Capture
	closed bool
}

func (m *mockEnqueuer) Enqueue(msg posthog.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if capture, ok := msg.(posthog.Capture); ok {
		m.events = append(m.events, capture)
	}
	return nil
}

func (m *mockEnqueuer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockEnqueuer) getEvents() []posthog.Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]posthog.Capture, len(m.events))
	copy(result, m.events)
	return result
}

func newTestClient(cfg *Config, version string) (*PostHogClient, *mockEnqueuer) {
	mock := &mockEnqueuer{}
	return newPostHogClientWithEnqueuer(mock, cfg, version), mock
}

func TestPostHogClient_Track_WhenEnabled(t *testing.T) {
	client, mock := newTestClient(&Config{Enabled: true, AnonymousID: "anon-123"}, "1.2.3")

	client.Track(EventStageCompleted, Properties{"stage": 3, "failed": 2})

	events := mock.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Event != EventStageCompleted {
		t.Errorf("event name = %q, want %q", event.Event, EventStageCompleted)
	}
	if event.DistinctId != "anon-123" {
		t.Errorf("distinct_id = %q, want %q", event.DistinctId, "anon-123")
	}
	if event.Properties["stage"] != 3 {
		t.Errorf("stage = %v, want 3", event.Properties["stage"])
	}
	if event.Properties["os"] != runtime.GOOS {
		t.Errorf("os = %v, want %q", event.Properties["os"], runtime.GOOS)
	}
	if event.Properties["version"] != "1.2.3" {
		t.Errorf("version = %v, want %q", event.Properties["version"], "1.2.3")
	}
	if event.Properties["$process_person_profile"] != false {
		t.Error("person profiles must be disabled")
	}
}

func TestPostHogClient_Track_Skipped(t *testing.T) {
	tests := []struct {
		name   string
		client *PostHogClient
		mock   *mockEnqueuer
	}{
		{name: "disabled", mock: &mockEnqueuer{}},
		{name: "nil config", mock: &mockEnqueuer{}},
	}
	tests[0].client = newPostHogClientWithEnqueuer(tests[0].mock, &Config{AnonymousID: "a"}, "1")
	tests[1].client = newPostHogClientWithEnqueuer(tests[1].mock, nil, "1")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.client.Track("event", nil)
			if n := len(tt.mock.getEvents()); n != 0 {
				t.Errorf("expected 0 events, got %d", n)
			}
		})
	}
}

func TestPostHogClient_Close(t *testing.T) {
	client, mock := newTestClient(&Config{Enabled: true}, "1.0.0")
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !mock.closed {
		t.Error("underlying client should be closed")
	}

	uninit := &PostHogClient{}
	if err := uninit.Close(); err != nil {
		t.Errorf("Close() on uninitialized client error = %v", err)
	}
}

func TestNewPostHogClient_WithoutKeyDropsEvents(t *testing.T) {
	client, err := NewPostHogClient(ClientConfig{Version: "1.0.0", Config: &Config{Enabled: true}})
	if err != nil {
		t.Fatalf("NewPostHogClient() error = %v", err)
	}
	if client.initialized {
		t.Error("should not be initialized without an API key")
	}
	client.Track("event", nil)
}

func TestPostHogClient_Track_Concurrent(t *testing.T) {
	client, mock := newTestClient(&Config{Enabled: true, AnonymousID: "anon"}, "1.0.0")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			client.Track("concurrent_event", Properties{"iteration": n})
		}(i)
	}
	wg.Wait()

	if n := len(mock.getEvents()); n != 100 {
		t.Errorf("expected 100 events, got %d", n)
	}
}

func TestTracker_ObserveStage(t *testing.T) {
	client, mock := newTestClient(&Config{Enabled: true, AnonymousID: "anon"}, "1.0.0")
	tracker := NewTracker(client)

	tracker.ObserveStage(context.Background(), &orchestrator.StageResult{
		Project: project.Project{ID: "proj-1", Idea: "secret idea", Status: project.StatusInProgress, CurrentStage: 4},
		Stage:   project.StageDesign,
		Outcome: executor.StageOutcome{Total: 5, Succeeded: 3, Failed: 2, Duration: 1500 * time.Millisecond},
	})
	tracker.ObserveStage(context.Background(), &orchestrator.StageResult{
		Project: project.Project{ID: "proj-1", Status: project.StatusCompleted, CurrentStage: 6},
		Stage:   project.StageGrowth,
		Outcome: executor.StageOutcome{Total: 2, Succeeded: 2},
	})

	events := mock.getEvents()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Properties["failed"] != 2 || events[0].Properties["duration_ms"] != int64(1500) {
		t.Errorf("unexpected stage properties: %v", events[0].Properties)
	}
	for _, e := range events {
		for _, v := range e.Properties {
			if v == "secret idea" || v == "proj-1" {
				t.Errorf("event %s leaks project data: %v", e.Event, e.Properties)
			}
		}
	}
	if events[2].Event != EventProjectFinished || events[2].Properties["status"] != "COMPLETED" {
		t.Errorf("expected project_finished COMPLETED, got %s %v", events[2].Event, events[2].Properties)
	}
}

func TestNewTracker_NilClient(t *testing.T) {
	NewTracker(nil).ObserveStage(context.Background(), &orchestrator.StageResult{})
}
