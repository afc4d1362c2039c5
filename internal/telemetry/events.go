package telemetry

import (
	"context"

	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
)

// Event names.
const (
	EventStageCompleted  = "stage_completed"
	EventProjectFinished = "project_finished"
	EventServerStarted   = "server_started"
)

// Tracker turns orchestrator stage results into telemetry events.
type Tracker struct {
	client Client
}

func NewTracker(client Client) *Tracker {
	if client == nil {
		client = NoopClient{}
	}
	return &Tracker{client: client}
}

// ObserveStage matches orchestrator.StageListener.
func (t *Tracker) ObserveStage(_ context.Context, res *orchestrator.StageResult) {
	t.client.Track(EventStageCompleted, Properties{
		"stage":       int(res.Stage),
		"delegates":   res.Outcome.Total,
		"succeeded":   res.Outcome.Succeeded,
		"failed":      res.Outcome.Failed,
		"artifacts":   len(res.Artifacts),
		"duration_ms": res.Outcome.Duration.Milliseconds(),
		"policy":      res.Decision.Policy,
	})

	if res.Project.Status.IsTerminal() {
		t.client.Track(EventProjectFinished, Properties{
			"status":      string(res.Project.Status),
			"final_stage": int(res.Project.CurrentStage),
		})
	}
}
