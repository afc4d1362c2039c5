package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/util"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists projects, tasks and artifacts in SQLite.
type SQLiteStore struct {
	db       *sql.DB
	basePath string // Path to .ideaforge directory, or ":memory:"
}

// NewSQLiteStore opens (or creates) the store under basePath. Pass ":memory:"
// for an in-process store that disappears on Close.
func NewSQLiteStore(basePath string) (*SQLiteStore, error) {
	var dbPath string
	if basePath == ":memory:" {
		dbPath = ":memory:"
	} else {
		dbPath = filepath.Join(basePath, "ideaforge.db")

		if err := os.MkdirAll(basePath, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every pooled connection to ":memory:" would get its own empty database.
	// A single writer also serializes stage commits on file databases.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &SQLiteStore{
		db:       db,
		basePath: basePath,
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		idea TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'CREATED',  -- CREATED, IN_PROGRESS, COMPLETED, FAILED, PAUSED
		current_stage INTEGER NOT NULL DEFAULT 1 CHECK (current_stage BETWEEN 1 AND 6),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One row per delegate invocation; never reused across stages
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		stage INTEGER NOT NULL,
		delegate_id TEXT NOT NULL,
		result TEXT,
		error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	-- Artifacts are immutable once written
	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		task_id TEXT,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		stage INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project_stage ON tasks(project_id, stage);
	CREATE INDEX IF NOT EXISTS idx_artifacts_project_stage ON artifacts(project_id, stage);
	CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// === Project CRUD ===

// CreateProject inserts a new project. Missing ID, status, stage and
// timestamps are filled in.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *project.Project) error {
	if p.ID == "" {
		p.ID = util.NewProjectID()
	}
	if p.Status == "" {
		p.Status = project.StatusCreated
	}
	if p.CurrentStage == 0 {
		p.CurrentStage = project.FirstStage
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, idea, status, current_stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Idea, p.Status, int(p.CurrentStage), p.CreatedAt.Format(timeLayout), p.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID. A missing project yields an error
// wrapping util.ErrNotFound.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, idea, status, current_stage, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)

	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea, status, current_stage, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectStatus sets the status without touching the stage.
func (s *SQLiteStore) UpdateProjectStatus(ctx context.Context, id string, status project.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	return expectOneRow(res, id)
}

// UpdateProjectProgress sets the stage and status together. The stage never
// moves backwards: an update to a lower stage than the stored one fails with
// ErrStageRegression.
func (s *SQLiteStore) UpdateProjectProgress(ctx context.Context, id string, stage project.Stage, status project.Status) error {
	if !stage.Valid() {
		return fmt.Errorf("invalid stage %d", stage)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET current_stage = ?, status = ?, updated_at = ?
		WHERE id = ? AND current_stage <= ?
	`, int(stage), status, time.Now().UTC().Format(timeLayout), id, int(stage))
	if err != nil {
		return fmt.Errorf("update project progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing project from a regression.
	if _, err := s.GetProject(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: project %s to stage %d", ErrStageRegression, id, stage)
}

// FindProjectIDsByPrefix returns project IDs starting with prefix.
func (s *SQLiteStore) FindProjectIDsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM projects WHERE id LIKE ? ESCAPE '\' ORDER BY id
	`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("query project ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}
	return ids, nil
}

// === Lifecycle ===

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// === Helpers ===

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*project.Project, error) {
	var p project.Project
	var stage int
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Idea, &p.Status, &stage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CurrentStage = project.Stage(stage)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", id, util.ErrNotFound)
	}
	return nil
}
