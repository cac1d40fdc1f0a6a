package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentfleet/agentfleet/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// writeSafeDSN makes file-backed databases safe for concurrent writers:
// transactions take the write lock up front (BEGIN IMMEDIATE) instead of
// upgrading a read lock mid-transaction, and a contending writer waits
// out the lock instead of erroring.
func writeSafeDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "_txlock=") {
		dsn += sep + "_txlock=immediate"
		sep = "&"
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		dsn += sep + "_busy_timeout=5000"
	}
	return dsn
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", writeSafeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			agent_name TEXT,
			project_dir TEXT,
			parent_session_id TEXT,
			executor_session_id TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_resumed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			parameters TEXT,
			agent_name TEXT,
			required_tags TEXT,
			require_matching_tags INTEGER NOT NULL DEFAULT 0,
			claimed_by TEXT,
			exit_reason TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			claimed_at DATETIME,
			started_at DATETIME,
			finished_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at)`,
		`CREATE TABLE IF NOT EXISTS runners (
			runner_id TEXT PRIMARY KEY,
			hostname TEXT NOT NULL,
			project_dir TEXT,
			executor_profile TEXT,
			tags TEXT,
			require_matching_tags INTEGER NOT NULL DEFAULT 0,
			retired INTEGER NOT NULL DEFAULT 0,
			registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_heartbeat DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			event_id INTEGER NOT NULL,
			run_id TEXT,
			type TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload TEXT,
			PRIMARY KEY (session_id, event_id),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_type ON events(session_id, type, event_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, status, agent_name, project_dir, parent_session_id, executor_session_id, metadata, created_at, last_resumed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.Status, nullString(session.AgentName), nullString(session.ProjectDir),
		nullString(session.ParentSessionID), nullString(session.ExecutorSessionID),
		nullStringBytes(session.Metadata), session.CreatedAt, session.LastResumedAt)
	return err
}

func scanSession(scan func(dest ...interface{}) error) (*domain.Session, error) {
	var session domain.Session
	var agentName, projectDir, parentID, executorID, metadata sql.NullString
	var lastResumedAt sql.NullTime
	err := scan(&session.SessionID, &session.Status, &agentName, &projectDir, &parentID, &executorID, &metadata, &session.CreatedAt, &lastResumedAt)
	if err != nil {
		return nil, err
	}
	if agentName.Valid {
		session.AgentName = agentName.String
	}
	if projectDir.Valid {
		session.ProjectDir = projectDir.String
	}
	if parentID.Valid {
		session.ParentSessionID = parentID.String
	}
	if executorID.Valid {
		session.ExecutorSessionID = executorID.String
	}
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	if lastResumedAt.Valid {
		session.LastResumedAt = &lastResumedAt.Time
	}
	return &session, nil
}

const sessionColumns = `session_id, status, agent_name, project_dir, parent_session_id, executor_session_id, metadata, created_at, last_resumed_at`

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return session, err
}

// ListSessions lists all sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// UpdateSessionStatus updates the stored status of a session.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE session_id = ?`, status, sessionID)
	return err
}

// MarkSessionResumed sets the session back to running and records the
// resume time.
func (s *SQLiteStore) MarkSessionResumed(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, last_resumed_at = ? WHERE session_id = ?`,
		domain.SessionStatusRunning, at, sessionID)
	return err
}

// BindSession records the executor's own session identity plus the
// runner-owned facts injected by the gateway.
func (s *SQLiteStore) BindSession(ctx context.Context, sessionID string, bind *domain.BindSessionRequest) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET executor_session_id = ?,
			project_dir = COALESCE(NULLIF(?, ''), project_dir)
		 WHERE session_id = ?`,
		bind.ExecutorSessionID, bind.ProjectDir, sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// PatchSessionMetadata replaces the session's metadata blob.
func (s *SQLiteStore) PatchSessionMetadata(ctx context.Context, sessionID string, patch []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET metadata = ? WHERE session_id = ?`,
		nullStringBytes(patch), sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session with its runs and events. This is an
// administrative operation, sessions are never deleted implicitly.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return tx.Commit()
}

// PurgeSessionsBefore bulk-deletes finished sessions created before the
// cutoff, cascading runs and events. Returns the number of sessions purged.
func (s *SQLiteStore) PurgeSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	where := `session_id IN (SELECT session_id FROM sessions WHERE status = ? AND created_at < ?)`
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE `+where, domain.SessionStatusFinished, cutoff); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE `+where, domain.SessionStatusFinished, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = ? AND created_at < ?`, domain.SessionStatusFinished, cutoff)
	if err != nil {
		return 0, err
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return purged, tx.Commit()
}

const runColumns = `run_id, session_id, type, status, parameters, agent_name, required_tags, require_matching_tags, claimed_by, exit_reason, created_at, claimed_at, started_at, finished_at`

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	tags, err := marshalTags(run.RequiredTags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, type, status, parameters, agent_name, required_tags, require_matching_tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SessionID, run.Type, run.Status, nullStringBytes(run.Parameters),
		nullString(run.AgentName), tags, run.RequireMatchingTags, run.CreatedAt)
	return err
}

func scanRun(scan func(dest ...interface{}) error) (*domain.Run, error) {
	var run domain.Run
	var parameters, agentName, tags, claimedBy, exitReason sql.NullString
	var claimedAt, startedAt, finishedAt sql.NullTime
	err := scan(&run.RunID, &run.SessionID, &run.Type, &run.Status, &parameters, &agentName,
		&tags, &run.RequireMatchingTags, &claimedBy, &exitReason,
		&run.CreatedAt, &claimedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if parameters.Valid {
		run.Parameters = json.RawMessage(parameters.String)
	}
	if agentName.Valid {
		run.AgentName = agentName.String
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &run.RequiredTags); err != nil {
			return nil, fmt.Errorf("failed to decode required_tags: %w", err)
		}
	}
	if claimedBy.Valid {
		run.ClaimedBy = claimedBy.String
	}
	if exitReason.Valid {
		run.ExitReason = exitReason.String
	}
	if claimedAt.Valid {
		run.ClaimedAt = &claimedAt.Time
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetLatestRun retrieves the most recently created run of a session.
func (s *SQLiteStore) GetLatestRun(ctx context.Context, sessionID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE session_id = ? ORDER BY created_at DESC, run_id DESC LIMIT 1`,
		sessionID)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) queryRuns(ctx context.Context, query string, args ...interface{}) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListRunsBySession lists a session's runs, oldest first.
func (s *SQLiteStore) ListRunsBySession(ctx context.Context, sessionID string) ([]domain.Run, error) {
	return s.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
}

// ListPendingRuns lists pending runs in FIFO order.
func (s *SQLiteStore) ListPendingRuns(ctx context.Context) ([]domain.Run, error) {
	return s.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY created_at ASC`, domain.RunStatusPending)
}

// ListActiveRuns lists runs in claimed, running or stopping state.
func (s *SQLiteStore) ListActiveRuns(ctx context.Context) ([]domain.Run, error) {
	return s.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status IN (?, ?, ?) ORDER BY created_at ASC`,
		domain.RunStatusClaimed, domain.RunStatusRunning, domain.RunStatusStopping)
}

// ClaimRun atomically moves a pending run to claimed for a runner. Under
// concurrent pollers exactly one caller observes true for a given run; the
// conditional update on status is the test-and-set.
func (s *SQLiteStore) ClaimRun(ctx context.Context, runID, runnerID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, claimed_by = ?, claimed_at = ? WHERE run_id = ? AND status = ?`,
		domain.RunStatusClaimed, runnerID, at, runID, domain.RunStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkRunStarted records the executor's first started report: a claimed
// run moves to running, a run already asked to stop keeps stopping but
// still gets its started_at. Once started_at is set the update no longer
// matches, so retried reports come back false and the caller can tell
// them from the first.
func (s *SQLiteStore) MarkRunStarted(ctx context.Context, runID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
			status = CASE WHEN status = ? THEN ? ELSE status END,
			started_at = ?
		 WHERE run_id = ? AND status IN (?, ?, ?) AND started_at IS NULL`,
		domain.RunStatusClaimed, domain.RunStatusRunning, at,
		runID, domain.RunStatusClaimed, domain.RunStatusRunning, domain.RunStatusStopping)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkRunStopping requests a cooperative stop of an in-flight run.
func (s *SQLiteStore) MarkRunStopping(ctx context.Context, runID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE run_id = ? AND status IN (?, ?)`,
		domain.RunStatusStopping, runID, domain.RunStatusClaimed, domain.RunStatusRunning)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FinishRun moves a run to a terminal status, but only from one of the
// allowed source states. Terminal states are final: once set, no update
// ever matches again.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status domain.RunStatus, exitReason string, from []domain.RunStatus, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("finish run: empty source state set")
	}
	placeholders := make([]string, len(from))
	args := []interface{}{status, nullString(exitReason), at, runID}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE runs SET status = ?, exit_reason = ?, finished_at = ? WHERE run_id = ? AND status IN (%s)`,
			strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const runnerColumns = `runner_id, hostname, project_dir, executor_profile, tags, require_matching_tags, retired, registered_at, last_heartbeat`

// CreateRunner registers a new runner record.
func (s *SQLiteStore) CreateRunner(ctx context.Context, runner *domain.Runner) error {
	tags, err := marshalTags(runner.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runners (runner_id, hostname, project_dir, executor_profile, tags, require_matching_tags, retired, registered_at, last_heartbeat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runner.RunnerID, runner.Hostname, nullString(runner.ProjectDir), nullString(runner.ExecutorProfile),
		tags, runner.RequireMatchingTags, runner.Retired, runner.RegisteredAt, runner.LastHeartbeat)
	return err
}

func scanRunner(scan func(dest ...interface{}) error) (*domain.Runner, error) {
	var runner domain.Runner
	var projectDir, executorProfile, tags sql.NullString
	err := scan(&runner.RunnerID, &runner.Hostname, &projectDir, &executorProfile, &tags,
		&runner.RequireMatchingTags, &runner.Retired, &runner.RegisteredAt, &runner.LastHeartbeat)
	if err != nil {
		return nil, err
	}
	if projectDir.Valid {
		runner.ProjectDir = projectDir.String
	}
	if executorProfile.Valid {
		runner.ExecutorProfile = executorProfile.String
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &runner.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode runner tags: %w", err)
		}
	}
	return &runner, nil
}

// GetRunner retrieves a runner by ID.
func (s *SQLiteStore) GetRunner(ctx context.Context, runnerID string) (*domain.Runner, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runnerColumns+` FROM runners WHERE runner_id = ?`, runnerID)
	runner, err := scanRunner(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return runner, err
}

// ListRunners lists all runners, including retired ones.
func (s *SQLiteStore) ListRunners(ctx context.Context) ([]domain.Runner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runnerColumns+` FROM runners ORDER BY registered_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runners []domain.Runner
	for rows.Next() {
		runner, err := scanRunner(rows.Scan)
		if err != nil {
			return nil, err
		}
		runners = append(runners, *runner)
	}
	return runners, rows.Err()
}

// TouchRunnerHeartbeat records a heartbeat. Returns false for unknown
// runners so the caller can tell the runner to re-register.
func (s *SQLiteStore) TouchRunnerHeartbeat(ctx context.Context, runnerID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runners SET last_heartbeat = ? WHERE runner_id = ?`, at, runnerID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RetireRunner marks a runner as logically retired. The record stays so
// its historical claims remain attributable.
func (s *SQLiteStore) RetireRunner(ctx context.Context, runnerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runners SET retired = 1 WHERE runner_id = ?`, runnerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrUnknownRunner
	}
	return nil
}

// AppendEvent assigns the next per-session sequence number and stores the
// event, all inside one transaction. The same atomic-increment discipline
// as ClaimRun: two concurrent appends can never observe the same event_id.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *domain.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE session_id = ?`, event.SessionID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}

	var nextID int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(event_id), 0) + 1 FROM events WHERE session_id = ?`, event.SessionID).Scan(&nextID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (session_id, event_id, run_id, type, ts, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, nextID, nullString(event.RunID), event.Type, event.Ts, nullStringBytes(event.Payload))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	event.EventID = nextID
	return nil
}

func scanEvent(scan func(dest ...interface{}) error) (*domain.Event, error) {
	var event domain.Event
	var runID, payload sql.NullString
	err := scan(&event.SessionID, &event.EventID, &runID, &event.Type, &event.Ts, &payload)
	if err != nil {
		return nil, err
	}
	if runID.Valid {
		event.RunID = runID.String
	}
	if payload.Valid {
		event.Payload = json.RawMessage(payload.String)
	}
	return &event, nil
}

// ListEvents retrieves a session's events with event_id > sinceID,
// ascending, capped at limit.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string, sinceID int64, limit int) ([]domain.Event, error) {
	query := `SELECT session_id, event_id, run_id, type, ts, payload FROM events WHERE session_id = ? AND event_id > ? ORDER BY event_id ASC`
	args := []interface{}{sessionID, sinceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// LatestEventOfType retrieves the most recent event of the given type for
// a session, or nil if none exists.
func (s *SQLiteStore) LatestEventOfType(ctx context.Context, sessionID string, eventType domain.EventType) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, event_id, run_id, type, ts, payload FROM events
		 WHERE session_id = ? AND type = ? ORDER BY event_id DESC LIMIT 1`,
		sessionID, eventType)
	event, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
