package engine

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/skeinhq/skein/internal/graph"
	"github.com/skeinhq/skein/internal/validation"
	"github.com/skeinhq/skein/pkg/models"
)

// ErrSessionNotFound reports a validation id with no stored session, either
// never issued or already purged.
var ErrSessionNotFound = errors.New("session not found")

// Session is one stored validation pass. Auto-fix loads the session by id,
// applies fixes to the reconstructed graph, and writes the outcome back so a
// follow-up run sees the current state.
type Session struct {
	ID        string
	ProjectID string
	Mode      validation.Mode
	Tasks     []*models.Task
	Edges     []*models.DependencyEdge
	Result    *validation.Result
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Graph rebuilds the session's dependency graph. Explicit DependsOn lists are
// cleared before the build so the stored edges keep their recorded sources
// instead of all gaining an explicit contribution, then restored from the
// merged edge set.
func (s *Session) Graph() (*graph.Graph, error) {
	stripped := models.CloneTasks(s.Tasks)
	for _, t := range stripped {
		t.SetDependencies(nil)
	}
	g, err := graph.Build(stripped)
	if err != nil {
		return nil, fmt.Errorf("rebuild session graph: %w", err)
	}
	for _, e := range s.Edges {
		if _, err := g.AddEdge(e.Clone()); err != nil {
			return nil, fmt.Errorf("rebuild session edges: %w", err)
		}
	}
	g.SyncTasks()
	return g, nil
}

type storedGraph struct {
	Tasks []*models.Task           `json:"tasks"`
	Edges []*models.DependencyEdge `json:"edges"`
}

// SessionStore persists validation sessions in sqlite.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore opens the session database, creating it and its parent
// directory if needed.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS validation_sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT,
			mode TEXT,
			graph TEXT,
			result TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SessionStore{db: db}, nil
}

// Create stores a new session holding the validated graph and its result.
func (s *SessionStore) Create(projectID string, mode validation.Mode, g *graph.Graph, res *validation.Result) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Mode:      mode,
		Tasks:     models.CloneTasks(g.Tasks()),
		Edges:     g.Edges(),
		Result:    res,
		CreatedAt: now,
		UpdatedAt: now,
	}

	graphJSON, resultJSON, err := encodeSession(session)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`
		INSERT INTO validation_sessions (id, project_id, mode, graph, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.ProjectID, string(session.Mode), graphJSON, resultJSON, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return session, nil
}

// Update stores the session's current graph and result.
func (s *SessionStore) Update(session *Session) error {
	session.UpdatedAt = time.Now().UTC()

	graphJSON, resultJSON, err := encodeSession(session)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(`
		UPDATE validation_sessions
		SET project_id = ?, mode = ?, graph = ?, result = ?, updated_at = ?
		WHERE id = ?
	`, session.ProjectID, string(session.Mode), graphJSON, resultJSON, session.UpdatedAt, session.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}

	return nil
}

// Get retrieves a session by id.
func (s *SessionStore) Get(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, mode, graph, result, created_at, updated_at
		FROM validation_sessions
		WHERE id = ?
	`, id)

	var (
		session    Session
		mode       string
		graphJSON  string
		resultJSON string
	)
	err := row.Scan(
		&session.ID,
		&session.ProjectID,
		&mode,
		&graphJSON,
		&resultJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	session.Mode = validation.Mode(mode)
	if err := decodeSession(&session, graphJSON, resultJSON); err != nil {
		return nil, err
	}

	return &session, nil
}

// Delete removes a session by id.
func (s *SessionStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM validation_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return nil
}

// Purge removes sessions last updated before the cutoff and reports how many
// were dropped.
func (s *SessionStore) Purge(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.Exec(`DELETE FROM validation_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func encodeSession(session *Session) (string, string, error) {
	graphJSON, err := json.Marshal(storedGraph{Tasks: session.Tasks, Edges: session.Edges})
	if err != nil {
		return "", "", fmt.Errorf("encode session graph: %w", err)
	}
	resultJSON, err := json.Marshal(session.Result)
	if err != nil {
		return "", "", fmt.Errorf("encode session result: %w", err)
	}
	return string(graphJSON), string(resultJSON), nil
}

func decodeSession(session *Session, graphJSON, resultJSON string) error {
	var sg storedGraph
	if err := json.Unmarshal([]byte(graphJSON), &sg); err != nil {
		return fmt.Errorf("decode session graph: %w", err)
	}
	session.Tasks = sg.Tasks
	session.Edges = sg.Edges

	var res validation.Result
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return fmt.Errorf("decode session result: %w", err)
	}
	session.Result = &res
	return nil
}
