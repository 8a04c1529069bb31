package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"veracity/internal/evidence"
)

// AppendEvidence persists one adapter outcome. Records are append-only;
// reruns append rather than overwrite so the audit trail survives retries.
func (s *Store) AppendEvidence(ctx context.Context, rec evidence.Record) (int64, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var payload any
	if len(rec.Payload) > 0 {
		payload = string(rec.Payload)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO evidence_records (
            job_id, adapter, factor, outcome, payload_json, reason, provider, latency_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.Adapter,
		rec.Factor,
		rec.Outcome,
		payload,
		nullableString(rec.Reason),
		nullableString(rec.Provider),
		rec.Latency.Milliseconds(),
		formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert evidence record: %w", err)
	}
	return res.LastInsertId()
}

// EvidenceForJob returns the full append-only record history for a job in
// insertion order. Callers reduce with evidence.Latest.
func (s *Store) EvidenceForJob(ctx context.Context, jobID int64) ([]evidence.Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, adapter, factor, outcome, payload_json, reason, provider, latency_ms, created_at
         FROM evidence_records WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query evidence records: %w", err)
	}
	defer rows.Close()

	var records []evidence.Record
	for rows.Next() {
		var (
			rec        evidence.Record
			factor     string
			outcome    string
			payloadRaw sql.NullString
			reason     sql.NullString
			provider   sql.NullString
			latencyMS  int64
			createdRaw string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.Adapter,
			&factor,
			&outcome,
			&payloadRaw,
			&reason,
			&provider,
			&latencyMS,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		rec.Factor = evidence.Factor(factor)
		rec.Outcome = evidence.Outcome(outcome)
		if payloadRaw.Valid {
			rec.Payload = json.RawMessage(payloadRaw.String)
		}
		rec.Reason = reason.String
		rec.Provider = provider.String
		rec.Latency = time.Duration(latencyMS) * time.Millisecond
		if t, err := parseTimeString(createdRaw); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
