package memory

import (
	"errors"

	"github.com/josephgoksu/IdeaForge/internal/project"
)

// ErrStageRegression is returned when an update would move a project to an
// earlier stage.
var ErrStageRegression = errors.New("project stage cannot move backwards")

// StageRecord is everything one stage produced for a project. It is written
// in a single transaction.
type StageRecord struct {
	ProjectID string
	Stage     project.Stage
	Tasks     []project.Task
	Artifacts []project.Artifact
}
