package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"veracity/internal/config"
	"veracity/internal/evidence"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// Open initializes or connects to the store database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "veracity.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:          db,
		path:        dbPath,
		maxAttempts: cfg.Queue.MaxAttempts,
		backoffBase: time.Duration(cfg.Queue.BackoffBaseSeconds) * time.Second,
		backoffMax:  time.Duration(cfg.Queue.BackoffMaxSeconds) * time.Second,
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts a new job and returns it.
func (s *Store) Enqueue(ctx context.Context, job NewJob) (*Job, error) {
	if job.Class == "" {
		return nil, errors.New("job class is required")
	}
	if job.OrgID == "" {
		return nil, errors.New("organization id is required")
	}
	if job.Class == ClassAnalysis && job.ArtifactRef == "" {
		return nil, errors.New("artifact reference is required for analysis jobs")
	}
	if job.Priority == "" {
		job.Priority = PriorityNormal
	}

	now := time.Now().UTC()
	timestamp := formatTime(now)

	var notBefore any
	if job.Delay > 0 {
		notBefore = formatTime(now.Add(job.Delay))
	}

	attrsJSON, err := json.Marshal(job.Attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact attrs: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            class, org_id, artifact_ref, artifact_attrs_json, payload_json,
            priority, status, not_before, force_escalation, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Class,
		job.OrgID,
		nullableString(job.ArtifactRef),
		string(attrsJSON),
		nullableString(job.PayloadJSON),
		job.Priority.Rank(),
		StatusPending,
		notBefore,
		boolToInt(job.ForceEscalation),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetJob(ctx, id)
}

// Claim atomically takes ownership of the runnable job with the highest
// priority tier in a class, FIFO within a tier. Returns nil when the queue
// is idle; callers poll. Claiming is the only externally observable
// mutation the queue performs on shared state.
func (s *Store) Claim(ctx context.Context, class Class, workerID string) (*Job, error) {
	now := time.Now().UTC()
	nowStr := formatTime(now)

	// The conditional update resolves races between concurrent claimers:
	// losing claimers affect zero rows and try the next candidate.
	for {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM jobs
             WHERE class = ? AND status = ? AND (not_before IS NULL OR not_before <= ?)
             ORDER BY priority, created_at LIMIT 1`,
			class, StatusPending, nowStr,
		)
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select claimable job: %w", err)
		}

		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, claimed_by = ?, attempts = attempts + 1,
                 last_heartbeat = ?, error_message = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusRunning, workerID, nowStr, nowStr, id, StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			continue // lost the race, try the next candidate
		}

		return s.GetJob(ctx, id)
	}
}

// Ack marks a claimed job completed.
func (s *Store) Ack(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, stage = ?, claimed_by = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted, StageDone, now, id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Nack releases a claimed job after a failure. Retryable jobs back off
// exponentially until attempts are exhausted, then transition to the
// terminal failed state; they are never silently dropped.
func (s *Store) Nack(ctx context.Context, id int64, retryable bool, reason string) (Status, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("nack: job %d not found", id)
	}

	now := time.Now().UTC()
	nowStr := formatTime(now)

	if !retryable || job.Attempts >= s.maxAttempts {
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, claimed_by = NULL, last_heartbeat = NULL,
                 error_message = ?, updated_at = ?
             WHERE id = ?`,
			StatusFailed, nullableString(reason), nowStr, id,
		)
		if err != nil {
			return "", fmt.Errorf("fail job: %w", err)
		}
		return StatusFailed, nil
	}

	delay := s.backoffDelay(job.Attempts)
	notBefore := formatTime(now.Add(delay))
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, claimed_by = NULL, last_heartbeat = NULL,
             not_before = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		StatusPending, notBefore, nullableString(reason), nowStr, id,
	)
	if err != nil {
		return "", fmt.Errorf("nack job: %w", err)
	}
	return StatusPending, nil
}

func (s *Store) backoffDelay(attempts int) time.Duration {
	delay := s.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.backoffMax {
			return s.backoffMax
		}
	}
	if delay > s.backoffMax {
		return s.backoffMax
	}
	return delay
}

// Cancel marks a pending or running job cancelled. A cancelled job writes
// no fusion result.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, claimed_by = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled, now, id, StatusPending, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetStage records the pipeline phase a running job is in.
func (s *Store) SetStage(ctx context.Context, id int64, stage Stage) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET stage = ?, updated_at = ? WHERE id = ?`,
		stage, now, id,
	)
	if err != nil {
		return fmt.Errorf("set stage: %w", err)
	}
	return nil
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status
// is provided), newest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RetryFailed moves failed jobs back to pending for reprocessing, resetting
// their attempt counts.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = 0, not_before = NULL, error_message = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET status = ?, attempts = 0, not_before = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat refreshes the heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns running jobs with expired heartbeats to pending so
// another worker can claim them (at-least-once delivery).
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, claimed_by = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending, now, StatusRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// CheckDatabaseHealth verifies the database file is present, readable, and
// passes SQLite's integrity check.
func (s *Store) CheckDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{DBPath: s.path}

	if _, err := os.Stat(s.path); err != nil {
		health.Error = err.Error()
		return health
	}
	health.DatabaseExists = true

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`).Scan(&total); err != nil {
		health.Error = err.Error()
		return health
	}
	health.DatabaseReadable = true
	health.TotalJobs = total

	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		health.Error = err.Error()
		return health
	}
	health.IntegrityCheck = result == "ok"
	if !health.IntegrityCheck {
		health.Error = "integrity check reported " + result
	}
	return health
}

// CountRecentByOrigin counts analysis jobs submitted from the same origin
// within the window. Feeds the repeat-upload escalation signal. The hash is
// compared against the extracted attribute value, so it only matches real
// origin hashes, never incidental substrings elsewhere in the attrs.
func (s *Store) CountRecentByOrigin(ctx context.Context, originHash string, window time.Duration) (int, error) {
	if originHash == "" {
		return 0, nil
	}
	cutoff := formatTime(time.Now().Add(-window))
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs
         WHERE class = ? AND created_at >= ?
           AND json_extract(artifact_attrs_json, '$.origin_hash') = ?`,
		ClassAnalysis, cutoff, originHash,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent by origin: %w", err)
	}
	return count, nil
}

const jobColumns = "id, class, org_id, artifact_ref, artifact_attrs_json, payload_json, priority, status, stage, attempts, not_before, claimed_by, last_heartbeat, error_message, force_escalation, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            int64
		class         string
		orgID         string
		artifactRef   sql.NullString
		attrsJSON     sql.NullString
		payloadJSON   sql.NullString
		priorityRank  int
		statusStr     string
		stageStr      sql.NullString
		attempts      int
		notBeforeRaw  sql.NullString
		claimedBy     sql.NullString
		heartbeatRaw  sql.NullString
		errorMessage  sql.NullString
		forceEscalate sql.NullInt64
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&class,
		&orgID,
		&artifactRef,
		&attrsJSON,
		&payloadJSON,
		&priorityRank,
		&statusStr,
		&stageStr,
		&attempts,
		&notBeforeRaw,
		&claimedBy,
		&heartbeatRaw,
		&errorMessage,
		&forceEscalate,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Class:        Class(class),
		OrgID:        orgID,
		ArtifactRef:  artifactRef.String,
		PayloadJSON:  payloadJSON.String,
		Priority:     priorityFromRank(priorityRank),
		Status:       Status(statusStr),
		Stage:        Stage(stageStr.String),
		Attempts:     attempts,
		ClaimedBy:    claimedBy.String,
		ErrorMessage: errorMessage.String,
	}
	if forceEscalate.Valid {
		job.ForceEscalation = forceEscalate.Int64 != 0
	}
	if attrsJSON.Valid && attrsJSON.String != "" {
		var attrs evidence.ArtifactAttrs
		if err := json.Unmarshal([]byte(attrsJSON.String), &attrs); err == nil {
			job.Attrs = attrs
		}
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = t
	}
	if notBeforeRaw.Valid {
		if t, err := parseTimeString(notBeforeRaw.String); err == nil {
			job.NotBefore = &t
		}
	}
	if heartbeatRaw.Valid {
		if t, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &t
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeWire is the timestamp layout stored in SQLite. The fraction keeps
// its trailing zeros so every stored timestamp has the same width and
// string comparison in SQL matches chronological order.
const timeWire = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeWire)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
