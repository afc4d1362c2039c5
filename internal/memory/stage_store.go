package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/util"
)

// insertTaskTx inserts one task row within a transaction.
func insertTaskTx(ctx context.Context, tx txExecutor, t *project.Task) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, name, status, stage, delegate_id, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Name, t.Status, int(t.Stage), t.DelegateID,
		nullString(t.Result), nullString(t.Error),
		t.CreatedAt.Format(timeLayout), t.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// insertArtifactTx inserts one artifact row within a transaction.
func insertArtifactTx(ctx context.Context, tx txExecutor, a *project.Artifact) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (id, project_id, task_id, name, content, type, stage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ProjectID, nullString(a.TaskID), a.Name, a.Content, a.Kind, int(a.Stage),
		a.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert artifact %s: %w", a.ID, err)
	}
	return nil
}

// prepareTask sets default values for a task before insertion.
func prepareTask(t *project.Task, rec StageRecord, now time.Time) {
	t.ProjectID = rec.ProjectID
	t.Stage = rec.Stage
	if t.ID == "" {
		t.ID = util.NewTaskID()
	}
	if t.Status == "" {
		t.Status = project.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

func prepareArtifact(a *project.Artifact, rec StageRecord, now time.Time) {
	a.ProjectID = rec.ProjectID
	if a.ID == "" {
		a.ID = util.NewArtifactID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}

// SaveStageResults writes the tasks and artifacts of one stage atomically.
// Either every row is stored or none is. Artifacts are validated against
// the stage before anything is written.
func (s *SQLiteStore) SaveStageResults(ctx context.Context, rec *StageRecord) error {
	if !rec.Stage.Valid() {
		return fmt.Errorf("invalid stage %d", rec.Stage)
	}
	now := time.Now().UTC()
	for i := range rec.Tasks {
		prepareTask(&rec.Tasks[i], *rec, now)
	}
	for i := range rec.Artifacts {
		prepareArtifact(&rec.Artifacts[i], *rec, now)
		if rec.Artifacts[i].Stage != rec.Stage {
			return fmt.Errorf("artifact %s has stage %d, saving stage %d", rec.Artifacts[i].ID, rec.Artifacts[i].Stage, rec.Stage)
		}
		if err := rec.Artifacts[i].Validate(); err != nil {
			return fmt.Errorf("artifact %s: %w", rec.Artifacts[i].ID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range rec.Tasks {
		if err := insertTaskTx(ctx, tx, &rec.Tasks[i]); err != nil {
			return err
		}
	}
	for i := range rec.Artifacts {
		if err := insertArtifactTx(ctx, tx, &rec.Artifacts[i]); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`,
		now.Format(timeLayout), rec.ProjectID); err != nil {
		return fmt.Errorf("touch project: %w", err)
	}

	return tx.Commit()
}

// ListTasks returns the tasks of a project ordered by stage, then insertion.
func (s *SQLiteStore) ListTasks(ctx context.Context, projectID string) ([]project.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, status, stage, delegate_id, COALESCE(result, ''), COALESCE(error, ''), created_at, updated_at
		FROM tasks WHERE project_id = ?
		ORDER BY stage, rowid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []project.Task
	for rows.Next() {
		var t project.Task
		var stage int
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Status, &stage, &t.DelegateID, &t.Result, &t.Error, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Stage = project.Stage(stage)
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		tasks = append(tasks, t)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListArtifacts returns the artifacts of a project ordered by stage, then
// insertion. A stage of 0 means all stages; otherwise only artifacts from
// stages strictly before beforeStage are returned.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, projectID string, beforeStage project.Stage) ([]project.Artifact, error) {
	query := `
		SELECT id, project_id, COALESCE(task_id, ''), name, content, type, stage, created_at
		FROM artifacts WHERE project_id = ?`
	args := []any{projectID}
	if beforeStage > 0 {
		query += ` AND stage < ?`
		args = append(args, int(beforeStage))
	}
	query += ` ORDER BY stage, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var artifacts []project.Artifact
	for rows.Next() {
		var a project.Artifact
		var stage int
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.TaskID, &a.Name, &a.Content, &a.Kind, &stage, &createdAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Stage = project.Stage(stage)
		a.CreatedAt = parseTime(createdAt)
		artifacts = append(artifacts, a)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

// CountArtifacts returns the number of artifacts stored for a project.
func (s *SQLiteStore) CountArtifacts(ctx context.Context, projectID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts WHERE project_id = ?`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, nil
}
