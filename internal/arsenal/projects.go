package arsenal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Project statuses as written by the design pipeline and the evolver.
const (
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// Project is a named design run. Design holds the master record JSON as
// the pipeline last wrote it.
type Project struct {
	ID        int64
	Name      string
	Intent    string
	Design    json.RawMessage
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BuildEntry is one line of a project's build history.
type BuildEntry struct {
	ProjectID  int64
	Generation int
	Verdict    string
	Notes      string
	At         time.Time
}

const saveProjectSQL = `INSERT INTO projects
	(name, intent, design_json, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		intent      = excluded.intent,
		design_json = excluded.design_json,
		status      = excluded.status,
		updated_at  = excluded.updated_at`

// SaveProject writes a project keyed by name and fills in its row ID.
func (s *Store) SaveProject(ctx context.Context, p *Project) error {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project needs a name")
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.execWrite(ctx, saveProjectSQL,
		p.Name, p.Intent, string(p.Design), p.Status,
		fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save project %q: %w", p.Name, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.QueryRowContext(ctx,
		"SELECT id FROM projects WHERE name = ?", p.Name).Scan(&p.ID)
}

// ProjectByName returns the stored project, or (nil, nil) on a miss.
func (s *Store) ProjectByName(ctx context.Context, name string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, name,
		COALESCE(intent, ''), COALESCE(design_json, ''), COALESCE(status, ''),
		COALESCE(created_at, ''), COALESCE(updated_at, '')
		FROM projects WHERE name = ?`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %q: %w", name, err)
	}
	return p, nil
}

// Projects lists every stored project, most recently touched first.
func (s *Store) Projects(ctx context.Context) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, name,
		COALESCE(intent, ''), COALESCE(design_json, ''), COALESCE(status, ''),
		COALESCE(created_at, ''), COALESCE(updated_at, '')
		FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LogBuild appends one build history line for a project.
func (s *Store) LogBuild(ctx context.Context, projectID int64, generation int, verdict, notes string) error {
	_, err := s.execWrite(ctx,
		"INSERT INTO build_log (project_id, generation, verdict, notes, ts) VALUES (?, ?, ?, ?, ?)",
		projectID, generation, verdict, notes, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to log build for project %d: %w", projectID, err)
	}
	return nil
}

// BuildEntries returns a project's build history in write order.
func (s *Store) BuildEntries(ctx context.Context, projectID int64) ([]BuildEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT project_id,
		COALESCE(generation, 0), COALESCE(verdict, ''), COALESCE(notes, ''),
		COALESCE(ts, '')
		FROM build_log WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load build log for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var out []BuildEntry
	for rows.Next() {
		var e BuildEntry
		var ts string
		if err := rows.Scan(&e.ProjectID, &e.Generation, &e.Verdict, &e.Notes, &ts); err != nil {
			return nil, err
		}
		e.At = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var design, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Intent, &design, &p.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if design != "" {
		p.Design = json.RawMessage(design)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
