package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and applies pending migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, "file::memory:")
}

// sqliteDSN adds the connection options every pooled connection needs:
// foreign keys, a busy timeout and, for file databases, WAL with immediate
// write transactions. Shared cache is dropped for file databases because
// its table locks fail at once instead of waiting for the busy timeout.
func sqliteDSN(dsn string) string {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}
	setDefault := func(key, value string) {
		if params.Get(key) == "" {
			params.Set(key, value)
		}
	}

	if params.Get("_fk") == "" {
		setDefault("_foreign_keys", "on")
	}
	setDefault("_busy_timeout", "5000")
	if !isMemoryDSN(dsn) {
		params.Del("cache")
		setDefault("_journal_mode", "WAL")
		setDefault("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const executionColumns = `execution_id, kind, status, project_id, pid, work_dir, output_dir,
	total_units, completed_units, stage, percentage, exit_code, result, stderr, error_message,
	elapsed_seconds, config, created_at, started_at, ended_at, heartbeat_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var exec domain.Execution
	var projectID, stage, result, stderr, errMsg, config sql.NullString
	var pid, exitCode sql.NullInt64
	var startedAt, endedAt, heartbeatAt sql.NullTime
	err := row.Scan(&exec.ID, &exec.Kind, &exec.Status, &projectID, &pid, &exec.WorkDir, &exec.OutputDir,
		&exec.TotalUnits, &exec.CompletedUnits, &stage, &exec.Percentage, &exitCode, &result, &stderr, &errMsg,
		&exec.ElapsedSeconds, &config, &exec.CreatedAt, &startedAt, &endedAt, &heartbeatAt)
	if err != nil {
		return nil, err
	}
	exec.ProjectID = projectID.String
	exec.PID = int(pid.Int64)
	exec.Stage = stage.String
	exec.Result = result.String
	exec.Stderr = stderr.String
	exec.ErrorMessage = errMsg.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		exec.ExitCode = &code
	}
	if config.Valid && config.String != "" {
		exec.Config = json.RawMessage(config.String)
	}
	if startedAt.Valid {
		exec.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		exec.EndedAt = &endedAt.Time
	}
	if heartbeatAt.Valid {
		exec.HeartbeatAt = &heartbeatAt.Time
	}
	return &exec, nil
}

// CreateExecution inserts a new execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, exec *domain.Execution) error {
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}
	if exec.Status == "" {
		exec.Status = domain.ExecutionStatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (execution_id, kind, status, project_id, work_dir, output_dir, total_units, config, created_at, heartbeat_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.Kind, exec.Status, nullString(exec.ProjectID), exec.WorkDir, exec.OutputDir,
		exec.TotalUnits, nullString(string(exec.Config)), exec.CreatedAt, exec.CreatedAt)
	return err
}

// GetExecution retrieves an execution by ID. It returns nil, nil when missing.
func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*domain.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE execution_id = ?`, executionID)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// ListExecutions lists executions, newest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1 = 1`
	var args []interface{}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryExecutions(ctx, query, args...)
}

// ListActiveExecutions returns PENDING and RUNNING executions, oldest first.
func (s *SQLiteStore) ListActiveExecutions(ctx context.Context) ([]domain.Execution, error) {
	return s.queryExecutions(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE status IN (?, ?) ORDER BY created_at ASC`,
		domain.ExecutionStatusPending, domain.ExecutionStatusRunning)
}

func (s *SQLiteStore) queryExecutions(ctx context.Context, query string, args ...interface{}) ([]domain.Execution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// CountActiveExecutions counts PENDING and RUNNING executions.
func (s *SQLiteStore) CountActiveExecutions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE status IN (?, ?)`,
		domain.ExecutionStatusPending, domain.ExecutionStatusRunning).Scan(&n)
	return n, err
}

// DeleteExecution removes an execution and, through cascading keys, its results and events.
func (s *SQLiteStore) DeleteExecution(ctx context.Context, executionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE execution_id = ?`, executionID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkRunning moves a PENDING execution to RUNNING. The PID is only stored if unset.
func (s *SQLiteStore) MarkRunning(ctx context.Context, executionID string, pid int) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, pid = COALESCE(pid, ?), started_at = ?, heartbeat_at = ?
		 WHERE execution_id = ? AND status = ?`,
		domain.ExecutionStatusRunning, pid, now, now, executionID, domain.ExecutionStatusPending)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Heartbeat records that a live coordinator still owns a PENDING or RUNNING execution.
func (s *SQLiteStore) Heartbeat(ctx context.Context, executionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET heartbeat_at = ? WHERE execution_id = ? AND status IN (?, ?)`,
		time.Now(), executionID, domain.ExecutionStatusPending, domain.ExecutionStatusRunning)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// StopExecution moves a RUNNING execution to STOPPED.
func (s *SQLiteStore) StopExecution(ctx context.Context, executionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, ended_at = ? WHERE execution_id = ? AND status = ?`,
		domain.ExecutionStatusStopped, time.Now(), executionID, domain.ExecutionStatusRunning)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// FinishExecution writes a terminal outcome if the execution is still PENDING or RUNNING.
// A concurrent STOPPED write therefore always wins.
func (s *SQLiteStore) FinishExecution(ctx context.Context, executionID string, outcome domain.Outcome) (bool, error) {
	if !outcome.Status.IsTerminal() || outcome.Status == domain.ExecutionStatusStopped {
		return false, fmt.Errorf("cannot finish execution with status %s", outcome.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, exit_code = ?, result = ?, stderr = ?, error_message = ?,
		 elapsed_seconds = ?, ended_at = ?,
		 percentage = CASE WHEN ? = 'COMPLETED' THEN 100 ELSE percentage END
		 WHERE execution_id = ? AND status IN (?, ?)`,
		outcome.Status, nullInt(outcome.ExitCode), nullString(outcome.Result), nullString(outcome.Stderr),
		nullString(outcome.ErrorMessage), outcome.ElapsedSeconds, time.Now(), outcome.Status,
		executionID, domain.ExecutionStatusPending, domain.ExecutionStatusRunning)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// RecordStoppedOutcome attaches output and timing to a STOPPED execution without changing its status.
func (s *SQLiteStore) RecordStoppedOutcome(ctx context.Context, executionID string, outcome domain.Outcome) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET exit_code = ?, result = ?, stderr = ?, elapsed_seconds = ?
		 WHERE execution_id = ? AND status = ?`,
		nullInt(outcome.ExitCode), nullString(outcome.Result), nullString(outcome.Stderr), outcome.ElapsedSeconds,
		executionID, domain.ExecutionStatusStopped)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// AnnotateError appends a message to the execution's error field.
func (s *SQLiteStore) AnnotateError(ctx context.Context, executionID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET error_message = CASE
			WHEN error_message IS NULL OR error_message = '' THEN ?
			ELSE error_message || '; ' || ? END
		 WHERE execution_id = ?`,
		message, message, executionID)
	return err
}

// UpdateProgress raises completed_units of a RUNNING execution; it never lowers it.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, executionID string, completedUnits int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET completed_units = MAX(completed_units, ?) WHERE execution_id = ? AND status = ?`,
		completedUnits, executionID, domain.ExecutionStatusRunning)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// UpdateStage records the current stage of a RUNNING execution. The percentage never decreases.
func (s *SQLiteStore) UpdateStage(ctx context.Context, executionID, stage string, percentage int) (bool, error) {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET stage = ?, percentage = MAX(percentage, ?) WHERE execution_id = ? AND status = ?`,
		stage, percentage, executionID, domain.ExecutionStatusRunning)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CreateEvent records an execution event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, execution_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.ExecutionID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for an execution.
func (s *SQLiteStore) GetEvents(ctx context.Context, executionID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, execution_id, ts, type, payload FROM events WHERE execution_id = ?`
	args := []interface{}{executionID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.ExecutionID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func marshalJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
